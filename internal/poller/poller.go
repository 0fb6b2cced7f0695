// Package poller runs the fetch, filter, aggregate and publish cycle on a
// fixed interval for as long as the process lives.
package poller

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"stationwatch.transitboard.org/internal/clock"
	"stationwatch.transitboard.org/internal/gtfs"
	"stationwatch.transitboard.org/internal/logging"
	"stationwatch.transitboard.org/internal/metrics"
	"stationwatch.transitboard.org/internal/models"
	"stationwatch.transitboard.org/internal/publish"
	"stationwatch.transitboard.org/internal/stations"
)

const DefaultInterval = 10 * time.Second

// Fetcher returns the vehicle positions of one realtime snapshot.
// *gtfs.RealtimeClient implements it.
type Fetcher interface {
	Fetch(ctx context.Context) ([]gtfs.VehiclePosition, error)
}

type State int

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}

// Status is a snapshot of the loop for health checks and debugging.
type Status struct {
	State               State
	Interval            time.Duration
	Cycles              uint64
	LastAttempt         time.Time
	LastSuccess         time.Time
	ConsecutiveFailures int
	LastError           string
}

// CycleResult summarises one cycle.
type CycleResult struct {
	Vehicles      int
	Matched       int
	Published     int
	PublishErrors int
	Err           error
}

type Options struct {
	Fetcher  Fetcher
	Names    stations.Namer
	Interest stations.Interest
	Sink     publish.Sink
	Interval time.Duration
	Clock    clock.Clock
	// Metrics is optional.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Poller struct {
	fetcher  Fetcher
	names    stations.Namer
	interest stations.Interest
	sink     publish.Sink
	interval time.Duration
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu            sync.RWMutex
	status        Status
	lastPublished []models.StationUpdate
}

func New(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		fetcher:  opts.Fetcher,
		names:    opts.Names,
		interest: opts.Interest,
		sink:     opts.Sink,
		interval: opts.Interval,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With(slog.String("component", "poller")),
		status:   Status{State: StateIdle, Interval: opts.Interval},
	}
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run executes a cycle immediately and then one cycle per interval until ctx
// is cancelled. Cycle failures never stop the loop.
func (p *Poller) Run(ctx context.Context) {
	logging.LogOperation(p.logger, "poller_started",
		slog.Duration("interval", p.interval))

	defer logging.LogOperation(p.logger, "poller_stopped")

	if ctx.Err() != nil {
		return
	}
	for {
		p.RunCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
		}
	}
}

// RunCycle performs one fetch and publishes every resulting station update.
func (p *Poller) RunCycle(ctx context.Context) CycleResult {
	start := p.clock.Now()
	p.mu.Lock()
	p.status.State = StatePolling
	p.status.LastAttempt = start
	p.status.Cycles++
	p.mu.Unlock()

	result := p.cycle(ctx)

	p.mu.Lock()
	p.status.State = StateIdle
	if result.Err != nil {
		p.status.ConsecutiveFailures++
		p.status.LastError = result.Err.Error()
	} else {
		p.status.ConsecutiveFailures = 0
		p.status.LastError = ""
		p.status.LastSuccess = start
	}
	p.mu.Unlock()

	if p.metrics != nil {
		outcome := "success"
		if result.Err != nil {
			outcome = "fetch_error"
		} else if result.PublishErrors > 0 {
			outcome = "publish_error"
		}
		p.metrics.PollCyclesTotal.WithLabelValues(outcome).Inc()
		p.metrics.CycleDuration.Observe(p.clock.Now().Sub(start).Seconds())
	}
	return result
}

func (p *Poller) cycle(ctx context.Context) CycleResult {
	records, err := p.fetcher.Fetch(ctx)
	if err != nil {
		attrs := []slog.Attr{slog.String("stage", "fetch")}
		if kind, ok := gtfs.FetchErrorKindOf(err); ok {
			attrs = append(attrs, slog.String("kind", kind.String()))
			if p.metrics != nil {
				p.metrics.FetchErrorsTotal.WithLabelValues(kind.String()).Inc()
			}
		} else if p.metrics != nil {
			p.metrics.FetchErrorsTotal.WithLabelValues("other").Inc()
		}
		logging.LogError(p.logger, "realtime fetch failed", err, attrs...)
		return CycleResult{Err: err}
	}

	matched := p.interest.Filter(records)
	if p.logger.Enabled(ctx, slog.LevelDebug) {
		for _, rec := range matched {
			p.logger.Debug("vehicle", slog.String("position", stations.Describe(rec, p.names)))
		}
	}

	updates := stations.Aggregate(matched, p.names)
	result := CycleResult{Vehicles: len(records), Matched: len(matched)}

	for _, update := range updates {
		if err := p.sink.Publish(ctx, publish.EventStationUpdate, update); err != nil {
			result.PublishErrors++
			logging.LogError(p.logger, "failed to publish station update", err,
				slog.String("stage", "publish"),
				slog.String("station", update.Station))
			continue
		}
		result.Published++
	}

	if p.metrics != nil {
		p.metrics.VehiclesDecoded.Set(float64(result.Vehicles))
		p.metrics.VehiclesMatched.Set(float64(result.Matched))
		p.metrics.StationUpdatesPublished.Add(float64(result.Published))
		p.metrics.PublishErrorsTotal.Add(float64(result.PublishErrors))
	}

	p.mu.Lock()
	p.lastPublished = updates
	p.mu.Unlock()

	p.logger.Debug("poll cycle complete",
		slog.Int("vehicles", result.Vehicles),
		slog.Int("matched", result.Matched),
		slog.Int("published", result.Published))
	return result
}

// Status returns a copy of the current loop status. Safe for concurrent use.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// LastPublished returns the station updates of the most recent successful
// cycle. A failed cycle leaves it untouched.
func (p *Poller) LastPublished() []models.StationUpdate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.lastPublished)
}
