package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "Bragg Creek", q.Get("address"))
		require.Equal(t, "administrative_area:Alberta|country:Canada", q.Get("components"))
		require.Equal(t, "test-key", q.Get("key"))

		fmt.Fprint(w, `{
			"status": "OK",
			"results": [{
				"formatted_address": "Bragg Creek, AB, Canada",
				"geometry": {
					"viewport": {
						"northeast": {"lat": 50.96, "lng": -114.55},
						"southwest": {"lat": 50.93, "lng": -114.59}
					}
				}
			}]
		}`)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.Endpoint = server.URL
	client := NewClient(cfg, "test-key")

	result, err := client.Locate(context.Background(), "Bragg Creek")
	require.NoError(t, err)
	require.Equal(t, "Bragg Creek, AB, Canada", result.Locality)
	require.Equal(t, 50.96, result.Bound.Northeast.Lat)
	require.Equal(t, -114.59, result.Bound.Southwest.Lng)
}

func TestLocateNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.Endpoint = server.URL
	client := NewClient(cfg, "test-key")

	_, err := client.Locate(context.Background(), "Nowheresville")
	require.ErrorIs(t, err, ErrNoResults)
}
