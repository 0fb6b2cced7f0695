package publish

import (
	"context"
	"fmt"
	"sync"

	"stationwatch.transitboard.org/internal/models"
)

const defaultSubscriberBuffer = 64

// Broadcaster fans events out to in-process subscribers such as the
// event-stream endpoint. It never blocks the publisher: a subscriber whose
// buffer is full misses the event and the publish reports an error.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// Subscription is one subscriber's view of the broadcast.
type Subscription struct {
	C <-chan Envelope
	c chan Envelope
}

// NewBroadcaster creates a broadcaster whose subscribers buffer up to
// buffer events. A non-positive buffer uses the default.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

func (b *Broadcaster) Subscribe() *Subscription {
	c := make(chan Envelope, b.buffer)
	sub := &Subscription{C: c, c: c}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.c)
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) Publish(ctx context.Context, event string, update models.StationUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := Envelope{Event: event, Payload: update}
	dropped := 0

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.c <- env:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%s for station %q dropped for %d slow subscriber(s)", event, update.Station, dropped)
	}
	return nil
}
