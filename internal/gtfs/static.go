package gtfs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"stationwatch.transitboard.org/internal/logging"
)

const maxStaticSize = 200 * 1024 * 1024

// CatalogError reports that the static schedule could not be loaded. The
// pipeline cannot run without a catalog, so callers treat it as fatal.
type CatalogError struct {
	Source string
	Err    error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("loading schedule catalog from %s: %v", e.Source, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

func newStaticHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		}}
}

// LoadCatalog downloads (or reads, for a local path) the static GTFS archive
// named by config.GtfsURL and indexes its routes and stops.
func LoadCatalog(ctx context.Context, config Config) (*Catalog, error) {
	logger := logging.FromContext(ctx).With(slog.String("component", "gtfs_catalog"))

	start := time.Now()
	b, err := readSource(ctx, newStaticHTTPClient(), config.GtfsURL, config.staticHeaders(), maxStaticSize, logger)
	if err != nil {
		return nil, &CatalogError{Source: config.GtfsURL, Err: err}
	}

	catalog, err := ParseCatalog(b, logger)
	if err != nil {
		return nil, &CatalogError{Source: config.GtfsURL, Err: err}
	}

	logging.LogOperation(logger, "gtfs_catalog_loaded",
		slog.String("source", config.GtfsURL),
		slog.Int("routes", len(catalog.routes)),
		slog.Int("stops", len(catalog.stops)),
		slog.Duration("elapsed", time.Since(start)))
	return catalog, nil
}

// ParseCatalog parses a GTFS zip archive into a Catalog. Parse warnings are
// counted on logger.
func ParseCatalog(b []byte, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}
	if len(staticData.Warnings) > 0 {
		logger.Debug("GTFS parse warnings",
			slog.Int("warnings", len(staticData.Warnings)))
	}
	return catalogFromStatic(staticData), nil
}

func catalogFromStatic(data *gtfs.Static) *Catalog {
	routes := make([]Route, len(data.Routes))
	for i := range data.Routes {
		routes[i] = Route{ID: data.Routes[i].Id, DisplayName: data.Routes[i].LongName}
	}

	stops := make([]Stop, len(data.Stops))
	for i := range data.Stops {
		stops[i] = Stop{ID: data.Stops[i].Id, DisplayName: data.Stops[i].Name}
	}
	return NewCatalog(routes, stops)
}
