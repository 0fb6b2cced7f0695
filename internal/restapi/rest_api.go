package restapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"stationwatch.transitboard.org/internal/app"
)

// RestAPI serves the station-update stream, the current board, health and
// metrics on top of a built Application.
type RestAPI struct {
	*app.Application
	staleDetector *StaleDetector
}

func NewRestAPI(app *app.Application) *RestAPI {
	api := &RestAPI{Application: app, staleDetector: NewStaleDetector()}
	if app != nil && app.Poller != nil {
		api.staleDetector = api.staleDetector.WithThreshold(staleIntervals * app.Poller.Interval())
	}
	return api
}

// SetRoutes registers every endpoint on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.Handle("GET /healthz", CacheControlMiddleware(0, http.HandlerFunc(api.healthHandler)))
	mux.HandleFunc("GET /events", api.eventsHandler)
	mux.Handle("GET /api/stations", CacheControlMiddleware(api.boardMaxAge(), http.HandlerFunc(api.stationsHandler)))

	if api.Application != nil && api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

func (api *RestAPI) now() time.Time {
	if api.Application != nil && api.Clock != nil {
		return api.Clock.Now()
	}
	return time.Now()
}

// boardMaxAge is how long a client may reuse /api/stations: the board only
// changes once per poll cycle.
func (api *RestAPI) boardMaxAge() time.Duration {
	if api.Application != nil && api.Poller != nil {
		return api.Poller.Interval()
	}
	return 0
}
