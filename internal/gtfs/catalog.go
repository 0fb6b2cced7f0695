package gtfs

import (
	"cmp"
	"slices"

	"stationwatch.transitboard.org/internal/set"
)

// Fallback labels used when the catalog cannot name a route or stop.
const (
	NoRouteFound = "<no route found>"
	NoRouteName  = "<no route name>"
	NoStopFound  = "<no stop found>"
	NoStopName   = "<no stop name>"
)

// Route is the part of a GTFS route the pipeline needs. An empty
// DisplayName means the feed did not provide route_long_name.
type Route struct {
	ID          string
	DisplayName string
}

// Stop is the part of a GTFS stop the pipeline needs. An empty DisplayName
// means the feed did not provide stop_name.
type Stop struct {
	ID          string
	DisplayName string
}

// Catalog is the immutable route and stop index built from the static
// schedule. It is safe for concurrent reads; nothing mutates it after
// construction.
type Catalog struct {
	routes map[string]Route
	stops  map[string]Stop
}

// NewCatalog indexes routes and stops by id. Later duplicates win.
func NewCatalog(routes []Route, stops []Stop) *Catalog {
	c := &Catalog{
		routes: make(map[string]Route, len(routes)),
		stops:  make(map[string]Stop, len(stops)),
	}
	for _, r := range routes {
		c.routes[r.ID] = r
	}
	for _, s := range stops {
		c.stops[s.ID] = s
	}
	return c
}

func (c *Catalog) Route(id string) (Route, bool) {
	r, ok := c.routes[id]
	return r, ok
}

func (c *Catalog) Stop(id string) (Stop, bool) {
	s, ok := c.stops[id]
	return s, ok
}

// RouteName returns the display name of a route, or NoRouteFound /
// NoRouteName when the route is unknown or unnamed. It never returns "".
func (c *Catalog) RouteName(routeID string) string {
	r, ok := c.routes[routeID]
	if !ok {
		return NoRouteFound
	}
	if r.DisplayName == "" {
		return NoRouteName
	}
	return r.DisplayName
}

// StopName returns the display name of a stop, or NoStopFound / NoStopName.
func (c *Catalog) StopName(stopID string) string {
	s, ok := c.stops[stopID]
	if !ok {
		return NoStopFound
	}
	if s.DisplayName == "" {
		return NoStopName
	}
	return s.DisplayName
}

// RouteIDsMatching translates a whitelist of route display names into the
// ids of catalog routes carrying one of those names. Names absent from the
// catalog contribute nothing.
func (c *Catalog) RouteIDsMatching(names []string) set.Set[string] {
	wanted := set.Of(names...)
	ids := make(set.Set[string])
	for id, r := range c.routes {
		if r.DisplayName != "" && wanted.Has(r.DisplayName) {
			ids.Add(id)
		}
	}
	return ids
}

// Routes returns every route ordered by id.
func (c *Catalog) Routes() []Route {
	routes := make([]Route, 0, len(c.routes))
	for _, r := range c.routes {
		routes = append(routes, r)
	}
	slices.SortFunc(routes, func(a, b Route) int { return cmp.Compare(a.ID, b.ID) })
	return routes
}

// Stops returns every stop ordered by id.
func (c *Catalog) Stops() []Stop {
	stops := make([]Stop, 0, len(c.stops))
	for _, s := range c.stops {
		stops = append(stops, s)
	}
	slices.SortFunc(stops, func(a, b Stop) int { return cmp.Compare(a.ID, b.ID) })
	return stops
}
