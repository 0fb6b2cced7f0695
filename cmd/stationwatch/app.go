package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"stationwatch.transitboard.org/internal/app"
	"stationwatch.transitboard.org/internal/appconf"
	"stationwatch.transitboard.org/internal/clock"
	"stationwatch.transitboard.org/internal/gtfs"
	"stationwatch.transitboard.org/internal/logging"
	"stationwatch.transitboard.org/internal/metrics"
	"stationwatch.transitboard.org/internal/poller"
	"stationwatch.transitboard.org/internal/publish"
	"stationwatch.transitboard.org/internal/restapi"
	"stationwatch.transitboard.org/internal/stations"
	"stationwatch.transitboard.org/internal/webui"
)

// eventOutput receives the JSON-lines event stream when publish.stdout is set.
var eventOutput io.Writer = os.Stdout

// BuildApplication loads the schedule catalog and wires the poll pipeline.
// A catalog failure is fatal: nothing is started.
func BuildApplication(ctx context.Context, cfg appconf.Config, gtfsCfg gtfs.Config, logger *slog.Logger) (*app.Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := gtfs.LoadCatalog(logging.WithLogger(ctx, logger), gtfsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule catalog: %w", err)
	}

	interest := stations.ResolveInterest(catalog, cfg.Interest.Routes, cfg.Interest.Stations, logger)
	if interest.RouteIDs.Len() == 0 {
		logger.Warn("no configured route name matches the schedule; nothing will be published",
			slog.Any("routes", cfg.Interest.Routes))
	}

	broadcaster := publish.NewBroadcaster(cfg.Publish.SubscriberBuffer)
	sinks := publish.Multi{broadcaster}
	if cfg.Publish.Stdout {
		sinks = append(sinks, publish.NewWriterSink(eventOutput))
	}
	if cfg.Publish.WebhookURL != "" {
		sinks = append(sinks, publish.NewWebhookSink(cfg.Publish.WebhookURL, cfg.Publish.WebhookRatePerSecond, logger))
	}

	m := metrics.NewWithLogger(logger)
	clk := clock.RealClock{}

	p := poller.New(poller.Options{
		Fetcher:  gtfs.NewRealtimeClient(gtfsCfg),
		Names:    catalog,
		Interest: interest,
		Sink:     sinks,
		Interval: cfg.Realtime.PollInterval,
		Clock:    clk,
		Metrics:  m,
		Logger:   logger,
	})

	return &app.Application{
		Config:      cfg,
		GtfsConfig:  gtfsCfg,
		Logger:      logger,
		Catalog:     catalog,
		Interest:    interest,
		Poller:      p,
		Broadcaster: broadcaster,
		Clock:       clk,
		Metrics:     m,
	}, nil
}

// CreateServer builds the HTTP server with all routes and middleware.
func CreateServer(coreApp *app.Application, cfg appconf.Config) *http.Server {
	mux := http.NewServeMux()

	api := restapi.NewRestAPI(coreApp)
	api.SetRoutes(mux)

	webUI := &webui.WebUI{Application: coreApp}
	webUI.SetWebUIRoutes(mux)

	var handler http.Handler = mux
	handler = restapi.MetricsHandler(coreApp.Metrics)(handler)
	handler = restapi.NewRequestLoggingMiddleware(coreApp.Logger)(handler)
	handler = restapi.RequestIDMiddleware(handler)

	// Shutdown does not cancel in-flight requests; event streams would hold
	// it open until its deadline without a base context to cancel.
	baseCtx, cancelStreams := context.WithCancel(context.Background())

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelStreams)
	return srv
}

// Run starts the poll loop and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func Run(ctx context.Context, coreApp *app.Application, srv *http.Server) error {
	logger := coreApp.Logger

	coreApp.Metrics.StartStatsCollector(coreApp.Stats, 5*time.Second)
	defer coreApp.Metrics.Shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		coreApp.Poller.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "http_server_starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server failed: %w", err)
			logging.LogError(logger, "http server failed", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "http server shutdown failed", err)
	}

	wg.Wait()
	logging.LogOperation(logger, "shutdown_complete")
	return runErr
}
