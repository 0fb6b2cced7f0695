package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/protobuf/encoding/prototext"
	"stationwatch.transitboard.org/internal/appconf"
	"stationwatch.transitboard.org/internal/gtfs"
	"stationwatch.transitboard.org/internal/logging"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stationwatch", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	env := fs.String("env", "", "environment (development|test|production)")
	addr := fs.String("addr", "", "HTTP listen address")
	interval := fs.Duration("interval", 0, "realtime poll interval")
	dumpFeed := fs.Bool("dump-feed", false, "fetch the realtime feed once, print it as prototext and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(&cfg, fs, *verbose, *env, *addr, *interval); err != nil {
		return err
	}

	// Logs go to stderr; stdout carries station-update events.
	logger := logging.NewLogger(os.Stderr, cfg.Env == appconf.Production, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	gtfsCfg := cfg.ToGtfsConfig()
	if *dumpFeed {
		return DumpFeed(ctx, gtfsCfg, os.Stdout)
	}

	coreApp, err := BuildApplication(ctx, cfg, gtfsCfg, logger)
	if err != nil {
		logging.LogError(logger, "startup failed", err)
		return err
	}

	return Run(ctx, coreApp, CreateServer(coreApp, cfg))
}

func loadConfig(path string) (appconf.Config, error) {
	if path == "" {
		return appconf.Default(), nil
	}
	cfg, err := appconf.LoadFromFile(path)
	if err != nil {
		return appconf.Config{}, err
	}
	return *cfg, nil
}

// applyFlags overrides file values with flags the user actually set.
func applyFlags(cfg *appconf.Config, fs *flag.FlagSet, verbose bool, env, addr string, interval time.Duration) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "verbose":
			cfg.Verbose = verbose
		case "env":
			var e appconf.Environment
			if e, err = appconf.ParseEnvironment(env); err == nil {
				cfg.Env = e
			}
		case "addr":
			cfg.Server.Addr = addr
		case "interval":
			cfg.Realtime.PollInterval = interval
		}
	})
	if err != nil {
		return err
	}
	return cfg.Validate()
}

// DumpFeed fetches the realtime feed once and writes it as prototext.
func DumpFeed(ctx context.Context, gtfsCfg gtfs.Config, w io.Writer) error {
	feed, err := gtfs.NewRealtimeClient(gtfsCfg).FetchFeed(ctx)
	if err != nil {
		return err
	}
	b, err := prototext.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(feed)
	if err != nil {
		return fmt.Errorf("failed to render feed: %w", err)
	}
	_, err = w.Write(b)
	return err
}
