package epsg

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/jamwil/terra/lib/geo"
	"github.com/stretchr/testify/require"
)

// fakeTrans applies a fixed affine map in one direction and its exact
// inverse in the other, enough to exercise axis order and round-trips.
func fakeTrans(t *testing.T) *Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "json", q.Get("format"))

		x, err := strconv.ParseFloat(q.Get("x"), 64)
		require.NoError(t, err)
		y, err := strconv.ParseFloat(q.Get("y"), 64)
		require.NoError(t, err)

		if q.Get("s_srs") == strconv.Itoa(SRSGeodetic) {
			x, y = x*100+5, y*100+7
		} else {
			x, y = (x-5)/100, (y-7)/100
		}
		// string values, the way the real service answers
		fmt.Fprintf(w, `{"x": "%v", "y": "%v", "z": "0.0"}`, x, y)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.Endpoint = server.URL
	return NewClient(cfg)
}

func TestRoundTrip(t *testing.T) {
	client := fakeTrans(t)
	ctx := context.Background()

	original := geo.Coordinate{Lat: 53.5461, Lng: -113.4938}
	point, err := client.ToProjected(ctx, original)
	require.NoError(t, err)

	back, err := client.ToGeodetic(ctx, point)
	require.NoError(t, err)

	require.InDelta(t, original.Lat, back.Lat, 1e-6)
	require.InDelta(t, original.Lng, back.Lng, 1e-6)
}

func TestAxisOrder(t *testing.T) {
	client := fakeTrans(t)

	point, err := client.ToProjected(context.Background(), geo.Coordinate{Lat: 2, Lng: 3})
	require.NoError(t, err)
	// x carries lng, y carries lat
	require.True(t, math.Abs(point.X-305) < 1e-9)
	require.True(t, math.Abs(point.Y-207) < 1e-9)
}

func TestMalformedResponseDegradesToSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>service is down</html>`)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.Endpoint = server.URL
	client := NewClient(cfg)

	point, err := client.ToProjected(context.Background(), geo.Coordinate{Lat: 53, Lng: -113})
	require.ErrorIs(t, err, ErrBadTransform)
	require.Equal(t, geo.Point{}, point)

	coord, err := client.ToGeodetic(context.Background(), geo.Point{X: 1, Y: 2})
	require.ErrorIs(t, err, ErrBadTransform)
	require.Equal(t, geo.Coordinate{}, coord)
}

func TestMissingFieldsDegradeToSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": "invalid srs"}`)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.Endpoint = server.URL
	client := NewClient(cfg)

	_, err := client.ToProjected(context.Background(), geo.Coordinate{})
	require.ErrorIs(t, err, ErrBadTransform)
}
