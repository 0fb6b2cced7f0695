package restapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"stationwatch.transitboard.org/internal/logging"
	"stationwatch.transitboard.org/internal/publish"
)

const keepAliveInterval = 15 * time.Second

// eventsHandler streams station updates as Server-Sent Events. A new client
// first receives the board of the last successful cycle.
func (api *RestAPI) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if api.Application == nil || api.Broadcaster == nil {
		http.Error(w, "event stream not available", http.StatusServiceUnavailable)
		return
	}

	rc := http.NewResponseController(w)
	// The server's write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	sub := api.Broadcaster.Subscribe()
	defer api.Broadcaster.Unsubscribe(sub)

	logger := logging.FromContext(r.Context()).With(slog.String("component", "event_stream"))
	logger.Debug("subscriber connected", slog.Int("subscribers", api.Broadcaster.Subscribers()))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if api.Poller != nil {
		for _, update := range api.Poller.LastPublished() {
			if err := writeEvent(w, publish.Envelope{Event: publish.EventStationUpdate, Payload: update}); err != nil {
				return
			}
		}
	}
	if err := rc.Flush(); err != nil {
		logging.LogError(logger, "event stream does not support flushing", err)
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("subscriber disconnected")
			return
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(w, env); err != nil {
				logging.LogError(logger, "failed to write event", err)
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, env publish.Envelope) error {
	data, err := json.Marshal(env.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Event, data)
	return err
}
