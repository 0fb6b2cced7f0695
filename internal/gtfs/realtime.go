package gtfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"google.golang.org/protobuf/proto"
	"stationwatch.transitboard.org/internal/logging"
)

const maxRealtimeBodySize = 25 * 1024 * 1024

// realtimeHTTPClient is a dedicated HTTP client for GTFS-RT feed fetching,
// configured with explicit timeouts and transport limits to avoid the pitfalls
// of http.DefaultClient (no timeout, shared global state).
var realtimeHTTPClient = newRealtimeHTTPClient()

func newRealtimeHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 10
	transport.MaxIdleConnsPerHost = 2
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	return &http.Client{
		// Absolute safety net per request; the poller's per-fetch context
		// timeout usually wins.
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// VehicleStopStatus is the vehicle's position relative to its current stop.
type VehicleStopStatus int

const (
	IncomingAt VehicleStopStatus = iota
	StoppedAt
	InTransitTo
)

func (s VehicleStopStatus) String() string {
	switch s {
	case IncomingAt:
		return "INCOMING_AT"
	case StoppedAt:
		return "STOPPED_AT"
	default:
		return "IN_TRANSIT_TO"
	}
}

// VehiclePosition is one decoded vehicle observation. Pointer fields are nil
// when the feed omitted them.
type VehiclePosition struct {
	RouteID     *string
	DirectionID *uint32
	StopID      *string
	Latitude    *float32
	Longitude   *float32
	Bearing     *float32
	// Speed is in meters per second.
	Speed  *float32
	Status VehicleStopStatus
}

// FetchErrorKind tells which stage of a fetch failed.
type FetchErrorKind int

const (
	KindNetwork FetchErrorKind = iota
	KindDecode
)

func (k FetchErrorKind) String() string {
	if k == KindDecode {
		return "decode"
	}
	return "network"
}

// FetchError is returned by RealtimeClient. It is always local to a single
// poll cycle.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("gtfs-rt %s error for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchErrorKindOf returns the kind of a FetchError anywhere in err's chain.
func FetchErrorKindOf(err error) (FetchErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// RealtimeClient fetches and decodes one GTFS-RT vehicle positions feed.
type RealtimeClient struct {
	url     string
	headers map[string]string
	timeout time.Duration
	client  *http.Client
}

func NewRealtimeClient(config Config) *RealtimeClient {
	return &RealtimeClient{
		url:     config.RealtimeURL,
		headers: config.realtimeHeaders(),
		timeout: config.FetchTimeout,
		client:  realtimeHTTPClient,
	}
}

func (c *RealtimeClient) URL() string {
	return c.url
}

// FetchFeed performs one request and decodes the body as a FeedMessage.
func (c *RealtimeClient) FetchFeed(ctx context.Context) (*gtfsrt.FeedMessage, error) {
	logger := logging.FromContext(ctx).With(slog.String("component", "gtfs_realtime_downloader"))

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := readSource(ctx, c.client, c.url, c.headers, maxRealtimeBodySize, logger)
	if err != nil {
		kind := KindNetwork
		var encErr *EncodingError
		if errors.As(err, &encErr) {
			kind = KindDecode
		}
		return nil, &FetchError{Kind: kind, URL: c.url, Err: err}
	}

	feed, err := DecodeFeed(body)
	if err != nil {
		return nil, &FetchError{Kind: KindDecode, URL: c.url, Err: err}
	}
	return feed, nil
}

// Fetch performs one request and returns the vehicle positions it carries.
func (c *RealtimeClient) Fetch(ctx context.Context) ([]VehiclePosition, error) {
	feed, err := c.FetchFeed(ctx)
	if err != nil {
		return nil, err
	}
	return VehiclePositions(feed), nil
}

// DecodeFeed decodes a single unframed FeedMessage. Missing proto2 required
// fields are tolerated; every field the pipeline reads has a fallback.
func DecodeFeed(body []byte) (*gtfsrt.FeedMessage, error) {
	feed := new(gtfsrt.FeedMessage)
	if err := (proto.UnmarshalOptions{AllowPartial: true}).Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to decode FeedMessage: %w", err)
	}
	return feed, nil
}

// DecodeVehiclePositions is DecodeFeed followed by VehiclePositions.
func DecodeVehiclePositions(body []byte) ([]VehiclePosition, error) {
	feed, err := DecodeFeed(body)
	if err != nil {
		return nil, err
	}
	return VehiclePositions(feed), nil
}

// VehiclePositions maps every entity carrying a vehicle payload. Entities
// without one (trip updates, alerts) are skipped.
func VehiclePositions(feed *gtfsrt.FeedMessage) []VehiclePosition {
	records := make([]VehiclePosition, 0, len(feed.GetEntity()))
	for _, entity := range feed.GetEntity() {
		if v := entity.GetVehicle(); v != nil {
			records = append(records, vehiclePosition(v))
		}
	}
	return records
}

func vehiclePosition(v *gtfsrt.VehiclePosition) VehiclePosition {
	var rec VehiclePosition

	if trip := v.GetTrip(); trip != nil {
		if trip.RouteId != nil {
			rec.RouteID = ptr(trip.GetRouteId())
		}
		if trip.DirectionId != nil {
			rec.DirectionID = ptr(trip.GetDirectionId())
		}
	}

	if v.StopId != nil {
		rec.StopID = ptr(v.GetStopId())
	}

	if pos := v.GetPosition(); pos != nil {
		if pos.Latitude != nil {
			rec.Latitude = ptr(pos.GetLatitude())
		}
		if pos.Longitude != nil {
			rec.Longitude = ptr(pos.GetLongitude())
		}
		if pos.Bearing != nil {
			rec.Bearing = ptr(pos.GetBearing())
		}
		if pos.Speed != nil {
			rec.Speed = ptr(pos.GetSpeed())
		}
	}

	switch v.GetCurrentStatus() {
	case gtfsrt.VehiclePosition_INCOMING_AT:
		rec.Status = IncomingAt
	case gtfsrt.VehiclePosition_STOPPED_AT:
		rec.Status = StoppedAt
	default:
		rec.Status = InTransitTo
	}
	return rec
}

func ptr[T any](thing T) *T {
	return &thing
}
