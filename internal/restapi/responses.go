package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"stationwatch.transitboard.org/internal/logging"
)

func setJSONResponseType(w *http.ResponseWriter) {
	(*w).Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	setJSONResponseType(&w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		api.logEncodeError(r, err)
	}
}

func (api *RestAPI) logEncodeError(r *http.Request, err error) {
	logger := logging.FromContext(r.Context())
	logging.LogError(logger, "failed to encode response", err,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))
}
