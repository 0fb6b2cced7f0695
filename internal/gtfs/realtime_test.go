package gtfs

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

type vehicleFixture struct {
	id      string
	routeID *string
	stopID  *string
	bearing *float32
	speed   *float32
	status  *gtfsrt.VehiclePosition_VehicleStopStatus
}

func vehicleEntity(f vehicleFixture) *gtfsrt.FeedEntity {
	v := &gtfsrt.VehiclePosition{
		StopId:        f.stopID,
		CurrentStatus: f.status,
		Position: &gtfsrt.Position{
			Latitude:  proto.Float32(43.03),
			Longitude: proto.Float32(-87.91),
			Bearing:   f.bearing,
			Speed:     f.speed,
		},
	}
	if f.routeID != nil {
		v.Trip = &gtfsrt.TripDescriptor{RouteId: f.routeID, DirectionId: proto.Uint32(1)}
	}
	return &gtfsrt.FeedEntity{Id: proto.String(f.id), Vehicle: v}
}

func feedBytes(t *testing.T, entities ...*gtfsrt.FeedEntity) []byte {
	t.Helper()
	msg := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Unix())),
		},
		Entity: entities,
	}
	b, err := proto.Marshal(msg)
	require.NoError(t, err)
	return b
}

func alertEntity(id string) *gtfsrt.FeedEntity {
	return &gtfsrt.FeedEntity{
		Id: proto.String(id),
		Alert: &gtfsrt.Alert{
			HeaderText: &gtfsrt.TranslatedString{
				Translation: []*gtfsrt.TranslatedString_Translation{{Text: proto.String("Delays")}},
			},
		},
	}
}

func TestDecodeVehiclePositions_CountsOnlyVehicleEntities(t *testing.T) {
	body := feedBytes(t,
		vehicleEntity(vehicleFixture{id: "1", routeID: proto.String("EB1"), stopID: proto.String("MKE"), bearing: proto.Float32(5)}),
		alertEntity("a1"),
		vehicleEntity(vehicleFixture{id: "2", routeID: proto.String("HIA"), stopID: proto.String("CHI")}),
		&gtfsrt.FeedEntity{Id: proto.String("tu1"), TripUpdate: &gtfsrt.TripUpdate{Trip: &gtfsrt.TripDescriptor{TripId: proto.String("t")}}},
		vehicleEntity(vehicleFixture{id: "3"}),
	)

	records, err := DecodeVehiclePositions(body)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestDecodeVehiclePositions_MapsFields(t *testing.T) {
	body := feedBytes(t, vehicleEntity(vehicleFixture{
		id:      "1",
		routeID: proto.String("EB1"),
		stopID:  proto.String("MKE"),
		bearing: proto.Float32(5),
		speed:   proto.Float32(20),
		status:  gtfsrt.VehiclePosition_STOPPED_AT.Enum(),
	}))

	records, err := DecodeVehiclePositions(body)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.NotNil(t, rec.RouteID)
	assert.Equal(t, "EB1", *rec.RouteID)
	require.NotNil(t, rec.StopID)
	assert.Equal(t, "MKE", *rec.StopID)
	require.NotNil(t, rec.Bearing)
	assert.InDelta(t, 5.0, *rec.Bearing, 1e-6)
	require.NotNil(t, rec.Speed)
	assert.InDelta(t, 20.0, *rec.Speed, 1e-6)
	require.NotNil(t, rec.DirectionID)
	assert.Equal(t, uint32(1), *rec.DirectionID)
	assert.Equal(t, StoppedAt, rec.Status)
}

func TestDecodeVehiclePositions_AbsentFieldsStayNil(t *testing.T) {
	body := feedBytes(t, &gtfsrt.FeedEntity{
		Id:      proto.String("bare"),
		Vehicle: &gtfsrt.VehiclePosition{},
	})

	records, err := DecodeVehiclePositions(body)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Nil(t, rec.RouteID)
	assert.Nil(t, rec.StopID)
	assert.Nil(t, rec.Bearing)
	assert.Nil(t, rec.Speed)
	assert.Nil(t, rec.Latitude)
	assert.Equal(t, InTransitTo, rec.Status, "absent status takes the GTFS-RT default")
}

func TestDecodeVehiclePositions_StatusMapping(t *testing.T) {
	tests := []struct {
		in       gtfsrt.VehiclePosition_VehicleStopStatus
		expected VehicleStopStatus
	}{
		{gtfsrt.VehiclePosition_INCOMING_AT, IncomingAt},
		{gtfsrt.VehiclePosition_STOPPED_AT, StoppedAt},
		{gtfsrt.VehiclePosition_IN_TRANSIT_TO, InTransitTo},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			body := feedBytes(t, vehicleEntity(vehicleFixture{id: "1", status: tt.in.Enum()}))
			records, err := DecodeVehiclePositions(body)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tt.expected, records[0].Status)
		})
	}
}

func TestDecodeFeed_ToleratesMissingRequiredFields(t *testing.T) {
	partial := &gtfsrt.FeedMessage{
		Entity: []*gtfsrt.FeedEntity{{Vehicle: &gtfsrt.VehiclePosition{StopId: proto.String("MKE")}}},
	}
	b, err := proto.MarshalOptions{AllowPartial: true}.Marshal(partial)
	require.NoError(t, err)

	records, err := DecodeVehiclePositions(b)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDecodeFeed_Garbage(t *testing.T) {
	_, err := DecodeFeed([]byte("this is not a protobuf feed"))
	assert.Error(t, err)
}

func TestRealtimeClient_Fetch(t *testing.T) {
	body := feedBytes(t,
		vehicleEntity(vehicleFixture{id: "1", routeID: proto.String("EB1"), stopID: proto.String("MKE"), bearing: proto.Float32(5)}),
		vehicleEntity(vehicleFixture{id: "2", routeID: proto.String("EB1"), stopID: proto.String("CHI"), bearing: proto.Float32(90)}),
	)

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	client := NewRealtimeClient(Config{
		RealtimeURL:             server.URL,
		RealtimeAuthHeaderKey:   "Authorization",
		RealtimeAuthHeaderValue: "Bearer token",
	})

	records, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, server.URL, client.URL())
}

func TestRealtimeClient_FetchGzip(t *testing.T) {
	body := feedBytes(t, vehicleEntity(vehicleFixture{id: "1", stopID: proto.String("MKE")}))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write(body)
		_ = zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	records, err := NewRealtimeClient(Config{RealtimeURL: server.URL}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "MKE", *records[0].StopID)
}

func TestRealtimeClient_CorruptGzipIsDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("not gzip at all"))
	}))
	defer server.Close()

	_, err := NewRealtimeClient(Config{RealtimeURL: server.URL}).Fetch(context.Background())
	require.Error(t, err)

	kind, ok := FetchErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindDecode, kind)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "gzip", encErr.Encoding)
}

func TestRealtimeClient_TruncatedGzipIsDecodeError(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(feedBytes(t, vehicleEntity(vehicleFixture{id: "1"})))
	_ = zw.Close()
	truncated := buf.Bytes()[:buf.Len()-6]

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(truncated)
	}))
	defer server.Close()

	_, err := NewRealtimeClient(Config{RealtimeURL: server.URL}).Fetch(context.Background())
	kind, ok := FetchErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindDecode, kind)
}

func TestRealtimeClient_NetworkErrorOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewRealtimeClient(Config{RealtimeURL: server.URL}).Fetch(context.Background())
	require.Error(t, err)

	kind, ok := FetchErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, kind)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestRealtimeClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a protobuf feed"))
	}))
	defer server.Close()

	_, err := NewRealtimeClient(Config{RealtimeURL: server.URL}).Fetch(context.Background())

	kind, ok := FetchErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindDecode, kind)
	assert.Contains(t, err.Error(), "decode")
}

func TestRealtimeClient_FetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewRealtimeClient(Config{RealtimeURL: server.URL, FetchTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := client.Fetch(context.Background())
	kind, ok := FetchErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, kind)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRealtimeClient_ReplaysLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vehicle-positions.pb")
	require.NoError(t, os.WriteFile(path, feedBytes(t, vehicleEntity(vehicleFixture{id: "1"}), vehicleEntity(vehicleFixture{id: "2"})), 0o600))

	records, err := NewRealtimeClient(Config{RealtimeURL: path}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRealtimeClient_EachFetchIsOneRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(feedBytes(t))
	}))
	defer server.Close()

	client := NewRealtimeClient(Config{RealtimeURL: server.URL})
	for i := 0; i < 3; i++ {
		records, err := client.Fetch(context.Background())
		require.NoError(t, err)
		assert.Empty(t, records)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchErrorKindOf_NonFetchError(t *testing.T) {
	_, ok := FetchErrorKindOf(assert.AnError)
	assert.False(t, ok)
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "decode", KindDecode.String())
}
