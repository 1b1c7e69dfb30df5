// Package geocode resolves a locality name into a bounding viewport via
// the Google Geocoding API. A literal bound string bypasses it entirely
// (geo.ParseBound).
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jamwil/terra/lib/geo"
	"github.com/jamwil/terra/lib/telemetry"
	"github.com/jamwil/terra/lib/textutil"

	"github.com/antzucaro/matchr"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("geocode")

var ErrNoResults = fmt.Errorf("geocoder returned no results")

type Config struct {
	Endpoint string `json:"endpoint"`
	Province string `json:"province"`
	Country  string `json:"country"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint: "https://maps.googleapis.com/maps/api/geocode/json",
		Province: "Alberta",
		Country:  "Canada",
	}
}

type Client struct {
	cfg    Config
	apiKey string
	http   *resty.Client
}

func NewClient(cfg Config, apiKey string) *Client {
	client := resty.New()
	client.SetTimeout(time.Second * 15)
	telemetry.InstrumentResty(client, "geocode/http")
	return &Client{cfg: cfg, apiKey: apiKey, http: client}
}

// Result carries the resolved viewport along with the address the
// geocoder actually matched, which is not always the one asked for.
type Result struct {
	Locality string
	Bound    geo.Bound
}

type response struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Viewport struct {
				Northeast geo.Coordinate `json:"northeast"`
				Southwest geo.Coordinate `json:"southwest"`
			} `json:"viewport"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *Client) Locate(ctx context.Context, locality string) (Result, error) {
	ctx, span := tracer.Start(ctx, "Locate")
	defer span.End()

	components := fmt.Sprintf(
		"administrative_area:%s|country:%s",
		c.cfg.Province, c.cfg.Country,
	)
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"address":    locality,
			"components": components,
			"key":        c.apiKey,
		}).
		Get(c.cfg.Endpoint)
	if err != nil {
		span.SetStatus(codes.Error, "geocode request failed")
		return Result{}, err
	}

	var payload response
	if err := json.Unmarshal(res.Body(), &payload); err != nil {
		span.SetStatus(codes.Error, "geocode response was not json")
		return Result{}, err
	}
	if payload.Status != "OK" || len(payload.Results) == 0 {
		span.SetStatus(codes.Error, ErrNoResults.Error())
		return Result{}, fmt.Errorf("%w: status %q", ErrNoResults, payload.Status)
	}

	first := payload.Results[0]
	warnOnMismatch(ctx, locality, first.FormattedAddress)

	return Result{
		Locality: first.FormattedAddress,
		Bound: geo.Bound{
			Northeast: first.Geometry.Viewport.Northeast,
			Southwest: first.Geometry.Viewport.Southwest,
		},
	}, nil
}

// warnOnMismatch flags resolutions that drifted far from the query,
// usually a typo'd locality snapping to somewhere unexpected.
func warnOnMismatch(ctx context.Context, asked, resolved string) {
	head := textutil.NormalizeName(strings.SplitN(resolved, ",", 2)[0])
	similarity := matchr.JaroWinkler(textutil.NormalizeName(asked), head, false)
	if similarity < 0.6 {
		slog.WarnContext(
			ctx,
			"geocoder resolved a dissimilar locality",
			"asked", asked,
			"resolved", resolved,
		)
	}
}
