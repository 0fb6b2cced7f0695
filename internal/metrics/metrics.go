// Package metrics provides Prometheus metrics for the stationwatch application.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Poll cycle metrics
	PollCyclesTotal         *prometheus.CounterVec
	FetchErrorsTotal        *prometheus.CounterVec
	PublishErrorsTotal      prometheus.Counter
	StationUpdatesPublished prometheus.Counter
	VehiclesDecoded         prometheus.Gauge
	VehiclesMatched         prometheus.Gauge
	CycleDuration           prometheus.Histogram

	// Sampled poller state
	LastSuccessTimestamp prometheus.Gauge
	ConsecutiveFailures  prometheus.Gauge
	EventSubscribers     prometheus.Gauge

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the stats collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationwatch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stationwatch_http_request_duration_seconds",
				Help:    "HTTP request latency distribution",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PollCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationwatch_poll_cycles_total",
				Help: "Poll cycles by outcome",
			},
			[]string{"outcome"},
		),
		FetchErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stationwatch_fetch_errors_total",
				Help: "Failed realtime fetches by kind (network, decode)",
			},
			[]string{"kind"},
		),
		PublishErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationwatch_publish_errors_total",
			Help: "Station updates a sink failed to deliver",
		}),
		StationUpdatesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationwatch_station_updates_published_total",
			Help: "Station updates handed to the publish sink",
		}),
		VehiclesDecoded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stationwatch_vehicles_decoded",
			Help: "Vehicle positions decoded in the last successful cycle",
		}),
		VehiclesMatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stationwatch_vehicles_matched",
			Help: "Vehicle positions that passed the interest filter in the last successful cycle",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stationwatch_poll_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle",
			Buckets: prometheus.DefBuckets,
		}),
		LastSuccessTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stationwatch_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll cycle",
		}),
		ConsecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stationwatch_consecutive_failures",
			Help: "Poll cycles failed since the last success",
		}),
		EventSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stationwatch_event_subscribers",
			Help: "Connected station-update stream subscribers",
		}),
		logger: logger,
	}

	// Register all metrics with the custom registry
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PollCyclesTotal,
		m.FetchErrorsTotal,
		m.PublishErrorsTotal,
		m.StationUpdatesPublished,
		m.VehiclesDecoded,
		m.VehiclesMatched,
		m.CycleDuration,
		m.LastSuccessTimestamp,
		m.ConsecutiveFailures,
		m.EventSubscribers,
	)

	return m
}

// Stats is a snapshot of poller and broadcaster state sampled by the
// stats collector.
type Stats struct {
	LastSuccess         time.Time
	ConsecutiveFailures int
	Subscribers         int
}

// StartStatsCollector starts a goroutine that periodically samples source
// and updates the corresponding gauges.
// This method is idempotent - calling it multiple times has no effect after the first call.
// Call Shutdown() to stop the collector.
func (m *Metrics) StartStatsCollector(source func() Stats, interval time.Duration) {
	if source == nil {
		return
	}

	// Prevent spawning multiple collectors
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Observe(source())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Observe copies one stats snapshot into the gauges.
func (m *Metrics) Observe(s Stats) {
	if !s.LastSuccess.IsZero() {
		m.LastSuccessTimestamp.Set(float64(s.LastSuccess.UnixNano()) / 1e9)
	}
	m.ConsecutiveFailures.Set(float64(s.ConsecutiveFailures))
	m.EventSubscribers.Set(float64(s.Subscribers))
}

// Shutdown stops the stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
