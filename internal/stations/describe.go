package stations

import (
	"fmt"

	"stationwatch.transitboard.org/internal/gtfs"
	"stationwatch.transitboard.org/internal/utils"
)

// Namer resolves both route and stop labels.
type Namer interface {
	RouteNamer
	StopName(stopID string) string
}

// Describe renders one vehicle position as a human readable line, e.g.
//
//	Empire Builder (direction 1): currently stopped at Milwaukee (MKE), speed 0.0 mph
func Describe(rec gtfs.VehiclePosition, names Namer) string {
	var direction uint32
	if rec.DirectionID != nil {
		direction = *rec.DirectionID
	}
	var speed float64
	if rec.Speed != nil {
		speed = utils.MetersPerSecondToMPH(float64(*rec.Speed))
	}
	stopID := deref(rec.StopID)

	return fmt.Sprintf("%s (direction %d): currently %s %s (%s), speed %.1f mph",
		trainLabel(rec, names),
		direction,
		statusPhrase(rec.Status),
		names.StopName(stopID),
		stopID,
		speed,
	)
}

func statusPhrase(status gtfs.VehicleStopStatus) string {
	switch status {
	case gtfs.IncomingAt:
		return "incoming at"
	case gtfs.StoppedAt:
		return "stopped at"
	default:
		return "in transit to"
	}
}
