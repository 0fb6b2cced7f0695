package app

import (
	"log/slog"

	"stationwatch.transitboard.org/internal/appconf"
	"stationwatch.transitboard.org/internal/clock"
	"stationwatch.transitboard.org/internal/gtfs"
	"stationwatch.transitboard.org/internal/metrics"
	"stationwatch.transitboard.org/internal/poller"
	"stationwatch.transitboard.org/internal/publish"
	"stationwatch.transitboard.org/internal/stations"
)

// Application holds the dependencies shared by the poll loop, the HTTP
// handlers and the debug pages. Everything here is built once at startup.
type Application struct {
	Config      appconf.Config
	GtfsConfig  gtfs.Config
	Logger      *slog.Logger
	Catalog     *gtfs.Catalog
	Interest    stations.Interest
	Poller      *poller.Poller
	Broadcaster *publish.Broadcaster
	Clock       clock.Clock
	Metrics     *metrics.Metrics
}

// Stats samples the poller and broadcaster for the metrics collector.
func (app *Application) Stats() metrics.Stats {
	var s metrics.Stats
	if app.Poller != nil {
		status := app.Poller.Status()
		s.LastSuccess = status.LastSuccess
		s.ConsecutiveFailures = status.ConsecutiveFailures
	}
	if app.Broadcaster != nil {
		s.Subscribers = app.Broadcaster.Subscribers()
	}
	return s
}
