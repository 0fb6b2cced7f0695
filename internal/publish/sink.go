// Package publish delivers station updates to whatever renders them.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"stationwatch.transitboard.org/internal/models"
)

// EventStationUpdate is the event name every station update is published under.
const EventStationUpdate = "station-update"

// Sink receives one event at a time. Implementations must be safe for
// concurrent use.
type Sink interface {
	Publish(ctx context.Context, event string, update models.StationUpdate) error
}

// Envelope is the wire form used by the stream and webhook sinks.
type Envelope struct {
	Event   string               `json:"event"`
	Payload models.StationUpdate `json:"payload"`
}

// WriterSink writes one JSON envelope per line, e.g. to stdout for a host
// process reading the pipe.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

func (s *WriterSink) Publish(ctx context.Context, event string, update models.StationUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(Envelope{Event: event, Payload: update}); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	return nil
}

// Multi publishes to every sink, even after one fails, and joins the errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, event string, update models.StationUpdate) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(ctx, event, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event string, update models.StationUpdate) error

func (f SinkFunc) Publish(ctx context.Context, event string, update models.StationUpdate) error {
	return f(ctx, event, update)
}
