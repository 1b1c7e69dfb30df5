package sitemap

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodDriver implements MapDriver against a real chromium via go-rod.
type RodDriver struct {
	browser *rod.Browser
	page    *rod.Page
}

func NewRodDriver(ctx context.Context, headless bool) (*RodDriver, error) {
	controlURL, err := launcher.New().Headless(headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chromium: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}

	return &RodDriver{browser: browser, page: page}, nil
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return err
	}
	return d.page.Context(ctx).WaitLoad()
}

func (d *RodDriver) WaitVisible(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.WaitVisible()
}

func (d *RodDriver) Type(ctx context.Context, selector, text string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.Input(text)
}

func (d *RodDriver) Click(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *RodDriver) ReadText(ctx context.Context, selector string) (string, error) {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return "", fmt.Errorf("element not found: %w", err)
	}
	return el.Text()
}

func (d *RodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.page.Context(ctx).Screenshot(false, nil)
}

func (d *RodDriver) Close() error {
	if d.page != nil {
		_ = d.page.Close()
	}
	return d.browser.Close()
}
