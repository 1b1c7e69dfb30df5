package spin

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FetchTitle retrieves the full-text detail record for one journal entry
// and returns the raw preformatted text block, ready for ParseTitle.
func (c *Client) FetchTitle(ctx context.Context, id string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchTitle")
	defer span.End()
	span.SetAttributes(attribute.String("title/id", id))

	if c.state != NoticeConfirmed {
		span.SetStatus(codes.Error, ErrNotAuthenticated.Error())
		return "", ErrNotAuthenticated
	}
	if err := c.pace(ctx); err != nil {
		return "", err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", id).
		Get(c.cfg.TitlePath)
	if err != nil {
		span.SetStatus(codes.Error, "title detail request failed")
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse title detail page")
		return "", err
	}

	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		span.SetStatus(codes.Error, "title detail page carried no text block")
		return "", fmt.Errorf("title %s: detail page carried no text block", id)
	}
	return pre.Text(), nil
}
