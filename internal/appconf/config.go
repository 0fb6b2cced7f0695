// Package appconf loads and validates the stationwatch configuration file.
package appconf

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"stationwatch.transitboard.org/internal/gtfs"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// ParseEnvironment accepts development, test or production (case-insensitive).
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return Development, nil
	case "test":
		return Test, nil
	case "production", "prod":
		return Production, nil
	}
	return Development, fmt.Errorf("unknown environment %q", s)
}

func (e *Environment) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	env, err := ParseEnvironment(s)
	if err != nil {
		return err
	}
	*e = env
	return nil
}

func (e Environment) MarshalYAML() (any, error) {
	return e.String(), nil
}

type ScheduleConfig struct {
	URL             string `yaml:"url" validate:"required"`
	AuthHeaderKey   string `yaml:"authHeaderKey"`
	AuthHeaderValue string `yaml:"authHeaderValue"`
}

type RealtimeConfig struct {
	URL             string        `yaml:"url" validate:"required"`
	AuthHeaderKey   string        `yaml:"authHeaderKey"`
	AuthHeaderValue string        `yaml:"authHeaderValue"`
	PollInterval    time.Duration `yaml:"pollInterval" validate:"gt=0"`
	// FetchTimeout bounds a single realtime request. Zero leaves only the
	// HTTP client's own timeout.
	FetchTimeout time.Duration `yaml:"fetchTimeout" validate:"gte=0"`
}

type InterestConfig struct {
	// Routes are matched against route_long_name in the schedule.
	Routes []string `yaml:"routes" validate:"min=1,dive,required"`
	// Stations are stop ids.
	Stations []string `yaml:"stations" validate:"min=1,dive,required"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
	// DebugKeys, when set, are required as ?key= on the debug pages.
	DebugKeys []string `yaml:"debugKeys" validate:"dive,required"`
}

type PublishConfig struct {
	Stdout               bool    `yaml:"stdout"`
	WebhookURL           string  `yaml:"webhookURL" validate:"omitempty,url"`
	WebhookRatePerSecond float64 `yaml:"webhookRatePerSecond" validate:"gte=0"`
	SubscriberBuffer     int     `yaml:"subscriberBuffer" validate:"gte=0"`
}

// Config is the root configuration structure
type Config struct {
	Env      Environment    `yaml:"env"`
	Verbose  bool           `yaml:"verbose"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Interest InterestConfig `yaml:"interest"`
	Server   ServerConfig   `yaml:"server"`
	Publish  PublishConfig  `yaml:"publish"`
}

// Default returns the configuration used when no file is given: the Amtrak
// national schedule, the transitdocs realtime feed, and the upper Midwest
// corridor between St. Paul and Chicago.
func Default() Config {
	return Config{
		Env: Development,
		Schedule: ScheduleConfig{
			URL: "https://content.amtrak.com/content/gtfs/GTFS.zip",
		},
		Realtime: RealtimeConfig{
			URL:          "https://asm-backend.transitdocs.com/gtfs/amtrak",
			PollInterval: 10 * time.Second,
			FetchTimeout: 15 * time.Second,
		},
		Interest: InterestConfig{
			Routes: []string{"Empire Builder", "Borealis", "Hiawatha Service"},
			Stations: []string{
				"MSP", "RDW", "WIN", "LSE", "TOH", "WDL",
				"POG", "CBS", "MKE", "MKA", "SVT", "CHI",
			},
		},
		Server: ServerConfig{
			Addr: ":4000",
		},
		Publish: PublishConfig{
			Stdout:               true,
			WebhookRatePerSecond: 5,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags and returns an error naming every
// offending field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadFromFile reads a YAML file over Default() and validates the result.
// Keys missing from the file keep their default values.
func LoadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ToGtfsConfig extracts the feed settings.
func (c Config) ToGtfsConfig() gtfs.Config {
	return gtfs.Config{
		GtfsURL:                 c.Schedule.URL,
		StaticAuthHeaderKey:     c.Schedule.AuthHeaderKey,
		StaticAuthHeaderValue:   c.Schedule.AuthHeaderValue,
		RealtimeURL:             c.Realtime.URL,
		RealtimeAuthHeaderKey:   c.Realtime.AuthHeaderKey,
		RealtimeAuthHeaderValue: c.Realtime.AuthHeaderValue,
		FetchTimeout:            c.Realtime.FetchTimeout,
	}
}
