package restapi

import (
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status              string `json:"status"`
	Detail              string `json:"detail,omitempty"`
	LastSuccess         string `json:"lastSuccess,omitempty"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}

// healthHandler reports whether the poll loop is producing fresh data.
// It returns 503 before the first successful cycle and when the last
// success is older than the stale threshold.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	if api.Application == nil || api.Poller == nil {
		api.sendJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Detail: "poller not initialized",
		})
		return
	}

	status := api.Poller.Status()
	resp := HealthResponse{ConsecutiveFailures: status.ConsecutiveFailures}

	if status.LastSuccess.IsZero() {
		resp.Status = "starting"
		resp.Detail = "no successful poll cycle yet"
		if status.LastError != "" {
			resp.Detail += ": " + status.LastError
		}
		api.sendJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}

	resp.LastSuccess = status.LastSuccess.UTC().Format(time.RFC3339)

	if api.staleDetector.Check(status.LastSuccess, api.now()) {
		resp.Status = "stale"
		resp.Detail = "last successful poll was " +
			api.staleDetector.Age(status.LastSuccess, api.now()).Round(time.Second).String() + " ago"
		api.sendJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Status = "ok"
	api.sendJSON(w, r, http.StatusOK, resp)
}
