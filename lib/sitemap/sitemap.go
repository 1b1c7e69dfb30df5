// Package sitemap recovers a geographic coordinate per title by driving
// the registry's interactive map viewer. The widget is stateful per page
// load, so correlation is strictly one record at a time.
package sitemap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jamwil/terra/lib/epsg"
	"github.com/jamwil/terra/lib/geo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sitemap")

// MapDriver is the slice of browser automation the correlator needs.
// The production implementation is rod-backed (driver_rod.go); tests
// substitute a fake so the correlation logic stays testable without a
// chrome binary.
type MapDriver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	ReadText(ctx context.Context, selector string) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

type Config struct {
	ViewerUrl       string `json:"viewer_url"`
	SearchSelector  string `json:"search_selector"`
	SubmitSelector  string `json:"submit_selector"`
	SurfaceSelector string `json:"surface_selector"`
	ReadoutSelector string `json:"readout_selector"`
	// directory screenshots are written to, one png per linc
	SitesDir string `json:"sites_dir"`
	// extra settle time after the surface reports visible, milliseconds
	RenderWaitMs int  `json:"render_wait_ms"`
	Headless     bool `json:"headless"`
}

func DefaultConfig() Config {
	return Config{
		ViewerUrl:       "https://alta.registries.gov.ab.ca/SpinII/mapindex.aspx",
		SearchSelector:  "input#txtLincSearch",
		SubmitSelector:  "input#cmdSearch",
		SurfaceSelector: "div#MapSurface",
		ReadoutSelector: "span#CoordinateReadout",
		SitesDir:        "data/sites",
		RenderWaitMs:    3000,
		Headless:        true,
	}
}

type Correlator struct {
	cfg    Config
	driver MapDriver
	bridge *epsg.Client
}

func NewCorrelator(cfg Config, driver MapDriver, bridge *epsg.Client) *Correlator {
	return &Correlator{cfg: cfg, driver: driver, bridge: bridge}
}

func (c *Correlator) Close() error {
	return c.driver.Close()
}

// Site is the outcome of correlating one title.
type Site struct {
	Coordinate geo.Coordinate
	// false when the transform degraded to the zero sentinel; the
	// record stays schema-valid but geometrically meaningless
	Valid          bool
	ScreenshotPath string
}

// Locate drives one full map interaction for a linc: fresh page load,
// search, wait for render, screenshot, pointer click, coordinate
// readout, back-transform to WGS84.
func (c *Correlator) Locate(ctx context.Context, linc int64) (Site, error) {
	ctx, span := tracer.Start(ctx, "Locate")
	defer span.End()
	span.SetAttributes(attribute.Int64("linc", linc))

	padded := fmt.Sprintf("%010d", linc)

	if err := c.driver.Navigate(ctx, c.cfg.ViewerUrl); err != nil {
		return Site{}, fmt.Errorf("navigate map viewer: %w", err)
	}
	if err := c.driver.WaitVisible(ctx, c.cfg.SearchSelector); err != nil {
		return Site{}, fmt.Errorf("map search box: %w", err)
	}
	if err := c.driver.Type(ctx, c.cfg.SearchSelector, padded); err != nil {
		return Site{}, err
	}
	if err := c.driver.Click(ctx, c.cfg.SubmitSelector); err != nil {
		return Site{}, err
	}

	if err := c.driver.WaitVisible(ctx, c.cfg.SurfaceSelector); err != nil {
		return Site{}, fmt.Errorf("map surface never rendered: %w", err)
	}
	select {
	case <-time.After(time.Duration(c.cfg.RenderWaitMs) * time.Millisecond):
	case <-ctx.Done():
		return Site{}, ctx.Err()
	}

	site := Site{}
	shot, err := c.driver.Screenshot(ctx)
	if err != nil {
		slog.WarnContext(ctx, "site screenshot failed", "linc", padded, "err", err)
	} else {
		site.ScreenshotPath, err = c.saveScreenshot(padded, shot)
		if err != nil {
			slog.WarnContext(ctx, "could not save site screenshot", "linc", padded, "err", err)
		}
	}

	// the widget only exposes coordinates after a pointer interaction
	if err := c.driver.Click(ctx, c.cfg.SurfaceSelector); err != nil {
		return site, err
	}
	readout, err := c.driver.ReadText(ctx, c.cfg.ReadoutSelector)
	if err != nil {
		return site, fmt.Errorf("coordinate readout: %w", err)
	}

	point, err := parseReadout(readout)
	if err != nil {
		return site, err
	}

	coord, err := c.bridge.ToGeodetic(ctx, point)
	if err != nil {
		// sentinel zero coordinate, flagged for operator review
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "coordinate back-transform degraded to sentinel",
			"linc", padded, "err", err)
		return site, nil
	}

	site.Coordinate = coord
	site.Valid = true
	return site, nil
}

func (c *Correlator) saveScreenshot(padded string, png []byte) (string, error) {
	if err := os.MkdirAll(c.cfg.SitesDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(c.cfg.SitesDir, padded+".png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// parseReadout splits the widget's "easting, northing" projected pair.
func parseReadout(readout string) (geo.Point, error) {
	parts := strings.Split(strings.TrimSpace(readout), ",")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("unexpected coordinate readout %q", readout)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("unexpected coordinate readout %q", readout)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("unexpected coordinate readout %q", readout)
	}
	return geo.Point{X: x, Y: y}, nil
}
