package stations

import (
	"stationwatch.transitboard.org/internal/gtfs"
	"stationwatch.transitboard.org/internal/models"
)

// NoRouteID labels a train whose feed entity carried no route id.
const NoRouteID = "<no route id>"

// RouteNamer resolves a route id to the label shown on the board.
// *gtfs.Catalog implements it.
type RouteNamer interface {
	RouteName(routeID string) string
}

// Aggregate groups records by stop id. Stations appear in the order of their
// first record and trains in record order within a station. Stations without
// records produce no update.
func Aggregate(records []gtfs.VehiclePosition, routes RouteNamer) []models.StationUpdate {
	var updates []models.StationUpdate
	index := make(map[string]int)

	for _, rec := range records {
		station := deref(rec.StopID)
		train := models.TrainState{
			Train: trainLabel(rec, routes),
			State: trainStatus(rec.Status),
		}

		i, ok := index[station]
		if !ok {
			i = len(updates)
			index[station] = i
			updates = append(updates, models.StationUpdate{Station: station})
		}
		updates[i].State = append(updates[i].State, train)
	}
	return updates
}

func trainLabel(rec gtfs.VehiclePosition, routes RouteNamer) string {
	if rec.RouteID == nil {
		return NoRouteID
	}
	return routes.RouteName(*rec.RouteID)
}

func trainStatus(status gtfs.VehicleStopStatus) models.TrainStatus {
	if status == gtfs.StoppedAt {
		return models.TrainStopped
	}
	return models.TrainIncoming
}
