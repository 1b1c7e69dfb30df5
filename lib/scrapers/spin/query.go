package spin

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jamwil/terra/lib/grid"
	"github.com/jamwil/terra/lib/htmlutil"
	"github.com/jamwil/terra/lib/journal"
	"github.com/jamwil/terra/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrNoResultsTable = fmt.Errorf("response carried no results table")

// registry dates come back as dd/mm/yyyy
const registryDateLayout = "02/01/2006"

// pointString flattens a tile ring into the registry's "lat;lng;" wire
// form. In the projected frame lat is the northing (Y) and lng the
// easting (X).
func pointString(tile grid.Tile) string {
	var sb strings.Builder
	for _, p := range tile.Points {
		sb.WriteString(strconv.FormatFloat(p.Y, 'f', -1, 64))
		sb.WriteString(";")
		sb.WriteString(strconv.FormatFloat(p.X, 'f', -1, 64))
		sb.WriteString(";")
	}
	return sb.String()
}

// QueryTile runs one spatial search over a tile and returns its result
// table. A structurally broken response (no results table, mangled
// markup) is an error the caller recovers from by skipping the tile.
func (c *Client) QueryTile(ctx context.Context, tile grid.Tile) (journal.Table, error) {
	ctx, span := tracer.Start(ctx, "client:QueryTile")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("tile/x", tile.Southwest().X),
		attribute.Float64("tile/y", tile.Southwest().Y),
	)

	if c.state != NoticeConfirmed {
		span.SetStatus(codes.Error, ErrNotAuthenticated.Error())
		return nil, ErrNotAuthenticated
	}
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"QueryType": "SPATIAL",
			"Points":    pointString(tile),
			"Radius":    "0",
			"Rights":    c.cfg.RightsQuery,
		}).
		Post(c.cfg.SearchPath)
	if err != nil {
		span.SetStatus(codes.Error, "spatial search request failed")
		return nil, err
	}

	table, err := parseSearchResults(res.Body())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tile/rows", len(table)))
	return table, nil
}

func parseSearchResults(body []byte) (journal.Table, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	results := doc.Find("table#SearchResults")
	if results.Length() == 0 {
		return nil, ErrNoResultsTable
	}

	var table journal.Table
	for _, row := range htmlutil.TableRows(results) {
		if len(row) < 5 {
			continue
		}
		entry := journal.Entry{
			ID:     row[0],
			Type:   row[3],
			Rights: row[4],
		}
		entry.RegistrationDate = coerceDate(entry.ID, "registration", row[1])
		entry.ChangeCancelDate = coerceDate(entry.ID, "change/cancel", row[2])
		table = append(table, entry)
	}
	return table, nil
}

// coerceDate tolerates blank and malformed cells; a bad date costs the
// row its ordering, not the batch. Dates are day-granular and anchored
// in the registry's zone so period comparisons stay inclusive.
func coerceDate(id, column, cell string) time.Time {
	if cell == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(registryDateLayout, cell, timezone.Location)
	if err != nil {
		slog.Warn("unparseable registry date", "id", id, "column", column, "value", cell)
		return time.Time{}
	}
	return timezone.Day(t)
}
