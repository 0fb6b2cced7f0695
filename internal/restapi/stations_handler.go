package restapi

import (
	"net/http"

	"stationwatch.transitboard.org/internal/models"
)

// stationsHandler returns the station updates of the last successful cycle.
func (api *RestAPI) stationsHandler(w http.ResponseWriter, r *http.Request) {
	updates := []models.StationUpdate{}
	if api.Application != nil && api.Poller != nil {
		if last := api.Poller.LastPublished(); last != nil {
			updates = last
		}
	}
	api.sendJSON(w, r, http.StatusOK, updates)
}
