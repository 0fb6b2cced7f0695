// Package stations narrows decoded vehicle positions to the routes and
// stations of interest and folds them into per-station board updates.
package stations

import (
	"log/slog"

	"stationwatch.transitboard.org/internal/gtfs"
	"stationwatch.transitboard.org/internal/set"
)

// Interest is the resolved whitelist a poll cycle filters against.
type Interest struct {
	RouteIDs   set.Set[string]
	StationIDs set.Set[string]
}

// ResolveInterest maps configured route display names to catalog route ids.
// Names the catalog does not know are dropped and logged at debug.
func ResolveInterest(catalog *gtfs.Catalog, routeNames, stationIDs []string, logger *slog.Logger) Interest {
	routeIDs := catalog.RouteIDsMatching(routeNames)

	if logger != nil {
		known := set.Set[string]{}
		for _, r := range catalog.Routes() {
			if routeIDs.Has(r.ID) {
				known.Add(r.DisplayName)
			}
		}
		for _, name := range routeNames {
			if name != "" && !known.Has(name) {
				logger.Debug("route name not in schedule", slog.String("route_name", name))
			}
		}
	}

	return Interest{
		RouteIDs:   routeIDs,
		StationIDs: set.Of(stationIDs...),
	}
}

// Filter keeps the records on a whitelisted route, at a whitelisted station,
// that carry a bearing. Missing route or stop ids compare as "". Input order
// is preserved.
func Filter(records []gtfs.VehiclePosition, routeIDs, stationIDs set.Set[string]) []gtfs.VehiclePosition {
	var kept []gtfs.VehiclePosition
	for _, rec := range records {
		if rec.Bearing == nil {
			continue
		}
		if !stationIDs.Has(deref(rec.StopID)) {
			continue
		}
		if !routeIDs.Has(deref(rec.RouteID)) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// Filter applies the interest whitelist to records.
func (i Interest) Filter(records []gtfs.VehiclePosition) []gtfs.VehiclePosition {
	return Filter(records, i.RouteIDs, i.StationIDs)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
