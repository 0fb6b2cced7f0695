package gtfs

import "time"

// Config holds the schedule and realtime source configuration.
type Config struct {
	GtfsURL               string
	StaticAuthHeaderKey   string
	StaticAuthHeaderValue string

	RealtimeURL             string
	RealtimeAuthHeaderKey   string
	RealtimeAuthHeaderValue string
	// FetchTimeout bounds a single realtime fetch. Zero leaves only the
	// HTTP client's own timeout in place.
	FetchTimeout time.Duration
}

func (config Config) staticHeaders() map[string]string {
	return authHeaders(config.StaticAuthHeaderKey, config.StaticAuthHeaderValue)
}

func (config Config) realtimeHeaders() map[string]string {
	return authHeaders(config.RealtimeAuthHeaderKey, config.RealtimeAuthHeaderValue)
}

func authHeaders(key, value string) map[string]string {
	if key == "" || value == "" {
		return nil
	}
	return map[string]string{key: value}
}
