package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamwil/terra/lib/epsg"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	typed    string
	readout  string
	png      []byte
	readErr  error
	navCount int
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	f.navCount++
	return nil
}
func (f *fakeDriver) WaitVisible(ctx context.Context, selector string) error { return nil }
func (f *fakeDriver) Type(ctx context.Context, selector, text string) error {
	f.typed = text
	return nil
}
func (f *fakeDriver) Click(ctx context.Context, selector string) error { return nil }
func (f *fakeDriver) ReadText(ctx context.Context, selector string) (string, error) {
	return f.readout, f.readErr
}
func (f *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) { return f.png, nil }
func (f *fakeDriver) Close() error                                   { return nil }

func bridgeWithResponse(t *testing.T, body string) *epsg.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)

	cfg := epsg.DefaultConfig()
	cfg.Endpoint = server.URL
	return epsg.NewClient(cfg)
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.RenderWaitMs = 0
	cfg.SitesDir = t.TempDir()
	return cfg
}

func TestLocate(t *testing.T) {
	driver := &fakeDriver{
		readout: "312456.7, 5686543.2",
		png:     []byte("not-really-a-png"),
	}
	bridge := bridgeWithResponse(t, `{"x": "-114.07", "y": "51.05"}`)
	correlator := NewCorrelator(testConfig(t), driver, bridge)

	site, err := correlator.Locate(context.Background(), 1234567890)
	require.NoError(t, err)

	// linc is zero padded to ten digits in the search box
	require.Equal(t, "1234567890", driver.typed)
	require.True(t, site.Valid)
	require.InDelta(t, 51.05, site.Coordinate.Lat, 1e-9)
	require.InDelta(t, -114.07, site.Coordinate.Lng, 1e-9)

	require.Equal(t, filepath.Join(correlator.cfg.SitesDir, "1234567890.png"), site.ScreenshotPath)
	saved, err := os.ReadFile(site.ScreenshotPath)
	require.NoError(t, err)
	require.Equal(t, driver.png, saved)
}

func TestLocatePadsShortLinc(t *testing.T) {
	driver := &fakeDriver{readout: "1, 2"}
	bridge := bridgeWithResponse(t, `{"x": "0.1", "y": "0.2"}`)
	correlator := NewCorrelator(testConfig(t), driver, bridge)

	_, err := correlator.Locate(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "0000000042", driver.typed)
}

func TestLocateTransformFailureYieldsSentinel(t *testing.T) {
	driver := &fakeDriver{readout: "312456.7, 5686543.2"}
	bridge := bridgeWithResponse(t, `oops, not json`)
	correlator := NewCorrelator(testConfig(t), driver, bridge)

	site, err := correlator.Locate(context.Background(), 1234567890)
	require.NoError(t, err)
	require.False(t, site.Valid)
	require.Zero(t, site.Coordinate.Lat)
	require.Zero(t, site.Coordinate.Lng)
}

func TestLocateBadReadout(t *testing.T) {
	driver := &fakeDriver{readout: "no coordinates here"}
	bridge := bridgeWithResponse(t, `{"x": "0", "y": "0"}`)
	correlator := NewCorrelator(testConfig(t), driver, bridge)

	_, err := correlator.Locate(context.Background(), 1)
	require.Error(t, err)
}

func TestParseReadout(t *testing.T) {
	point, err := parseReadout(" 312456.7 , 5686543.2 ")
	require.NoError(t, err)
	require.Equal(t, 312456.7, point.X)
	require.Equal(t, 5686543.2, point.Y)

	_, err = parseReadout("312456.7")
	require.Error(t, err)
	_, err = parseReadout("a, b")
	require.Error(t, err)
}
