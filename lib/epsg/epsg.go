// Package epsg converts between geodetic WGS84 and the registry's
// projected frame by delegating to the epsg.io transform service.
package epsg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jamwil/terra/lib/geo"
	"github.com/jamwil/terra/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("epsg")

// ErrBadTransform marks a malformed or non-JSON transform response. The
// returned coordinate is the zero sentinel; the caller decides whether
// the record is kept (flagged) or dropped.
var ErrBadTransform = fmt.Errorf("transform service returned an unusable response")

const (
	// WGS84 geodetic
	SRSGeodetic = 4326
	// NAD83 Alberta 10-TM Forest, the registry's planar frame
	SRSProjected = 3402
)

type Config struct {
	Endpoint     string `json:"endpoint"`
	GeodeticSRS  int    `json:"geodetic_srs"`
	ProjectedSRS int    `json:"projected_srs"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint:     "https://epsg.io/trans",
		GeodeticSRS:  SRSGeodetic,
		ProjectedSRS: SRSProjected,
	}
}

type Client struct {
	cfg  Config
	http *resty.Client
}

func NewClient(cfg Config) *Client {
	client := resty.New()
	client.SetTimeout(time.Second * 15)
	telemetry.InstrumentResty(client, "epsg/http")
	return &Client{cfg: cfg, http: client}
}

// ToProjected converts a geodetic coordinate into the projected frame.
// The service takes x=lng, y=lat and answers in the same axis order.
func (c *Client) ToProjected(ctx context.Context, coord geo.Coordinate) (geo.Point, error) {
	x, y, err := c.trans(ctx, c.cfg.GeodeticSRS, c.cfg.ProjectedSRS, coord.Lng, coord.Lat)
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Point{X: x, Y: y}, nil
}

// ToGeodetic is the inverse transform.
func (c *Client) ToGeodetic(ctx context.Context, point geo.Point) (geo.Coordinate, error) {
	x, y, err := c.trans(ctx, c.cfg.ProjectedSRS, c.cfg.GeodeticSRS, point.X, point.Y)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return geo.Coordinate{Lat: y, Lng: x}, nil
}

func (c *Client) trans(ctx context.Context, sSRS, tSRS int, x, y float64) (float64, float64, error) {
	ctx, span := tracer.Start(ctx, "trans")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format": "json",
			"s_srs":  strconv.Itoa(sSRS),
			"t_srs":  strconv.Itoa(tSRS),
			"x":      strconv.FormatFloat(x, 'f', -1, 64),
			"y":      strconv.FormatFloat(y, 'f', -1, 64),
		}).
		Get(c.cfg.Endpoint)
	if err != nil {
		span.SetStatus(codes.Error, "transform request failed")
		return 0, 0, err
	}

	var payload map[string]any
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		span.SetStatus(codes.Error, ErrBadTransform.Error())
		return 0, 0, fmt.Errorf("%w: %s", ErrBadTransform, err)
	}

	// the service is inconsistent about numeric vs string values
	outX, okX := toFloat(payload["x"])
	outY, okY := toFloat(payload["y"])
	if !okX || !okY {
		span.SetStatus(codes.Error, ErrBadTransform.Error())
		return 0, 0, ErrBadTransform
	}
	return outX, outY, nil
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case string:
		f, err := strconv.ParseFloat(value, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
