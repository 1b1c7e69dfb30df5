// Package spin talks to the SPIN II land-titles registry. The registry
// has no API; everything goes through a cookie-scoped ASP.NET form
// session that must complete a guest-logon handshake before any query
// will succeed.
package spin

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	"github.com/jamwil/terra/lib/restyutil"
	"github.com/jamwil/terra/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	random "github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/spin")

var ErrLoginFailed = fmt.Errorf("guest logon did not reach the confirmed state")
var ErrNotAuthenticated = fmt.Errorf("session has not confirmed the legal notice")

// SessionState tracks how far through the guest handshake a client is.
// Only NoticeConfirmed sessions may issue data queries.
type SessionState int

const (
	Unauthenticated SessionState = iota
	LoggedInGuest
	NoticeConfirmed
)

const guestMarker = "You are logged on as a Guest."

type Config struct {
	// base url of the registry, e.g. https://alta.registries.gov.ab.ca/SpinII
	BaseUrl     string `json:"base_url"`
	LogonPath   string `json:"logon_path"`
	NoticePath  string `json:"notice_path"`
	SearchPath  string `json:"search_path"`
	TitlePath   string `json:"title_path"`
	RightsQuery string `json:"rights_query"`
	// pause between handshake steps, milliseconds
	HandshakeDelayMs int `json:"handshake_delay_ms"`
	// minimum interval between any two requests, milliseconds
	RequestIntervalMs int `json:"request_interval_ms"`
	// random extra pause added on top of the interval, milliseconds
	RequestJitterMs int `json:"request_jitter_ms"`
	// when set, every exchange is dumped here for debugging
	DebugDir string `json:"debug_dir"`
}

func DefaultConfig() Config {
	return Config{
		BaseUrl:           "https://alta.registries.gov.ab.ca/SpinII",
		LogonPath:         "/logon.aspx",
		NoticePath:        "/legalnotice.aspx",
		SearchPath:        "/spatialsearch.aspx",
		TitlePath:         "/titleresults.aspx",
		RightsQuery:       "B",
		HandshakeDelayMs:  2000,
		RequestIntervalMs: 1000,
		RequestJitterMs:   500,
	}
}

// Client holds the one registry session for a run. It is not safe for
// concurrent use and is not meant to be: the registry is paced and
// queried strictly sequentially.
type Client struct {
	cfg   Config
	http  *resty.Client
	state SessionState

	lastRequest time.Time
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseUrl == "" {
		return nil, fmt.Errorf("registry base url is required")
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/spin/http")
	if cfg.DebugDir != "" {
		recorder, err := restyutil.NewRecorder(cfg.DebugDir)
		if err != nil {
			return nil, fmt.Errorf("create exchange recorder: %w", err)
		}
		recorder.Attach(client)
	}

	return &Client{cfg: cfg, http: client}, nil
}

func (c *Client) State() SessionState {
	return c.state
}

// pace blocks until the configured minimum interval (plus jitter) has
// elapsed since the previous request. This is a courtesy to the registry,
// not an optimization; removing it gets runs flagged.
func (c *Client) pace(ctx context.Context) error {
	wait := time.Duration(c.cfg.RequestIntervalMs) * time.Millisecond
	if c.cfg.RequestJitterMs > 0 {
		jitter, err := random.IntRange(0, c.cfg.RequestJitterMs)
		if err == nil {
			wait += time.Duration(jitter) * time.Millisecond
		}
	}

	elapsed := time.Since(c.lastRequest)
	if elapsed >= wait {
		c.lastRequest = time.Now()
		return nil
	}

	select {
	case <-time.After(wait - elapsed):
	case <-ctx.Done():
		return ctx.Err()
	}
	c.lastRequest = time.Now()
	return nil
}

func (c *Client) handshakePause(ctx context.Context) error {
	select {
	case <-time.After(time.Duration(c.cfg.HandshakeDelayMs) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// formState is the trio of hidden fields ASP.NET threads through every
// form post to keep the server-side session alive.
type formState struct {
	eventTarget   string
	eventArgument string
	viewState     string
}

func extractFormState(doc *goquery.Document) formState {
	return formState{
		eventTarget:   doc.Find("input[name=__EVENTTARGET]").AttrOr("value", ""),
		eventArgument: doc.Find("input[name=__EVENTARGUMENT]").AttrOr("value", ""),
		viewState:     doc.Find("input[name=__VIEWSTATE]").AttrOr("value", ""),
	}
}

// Login runs the 3-step guest handshake: fetch the logon page for its
// hidden form state, post the guest-logon form, then confirm the legal
// notice with the updated view state. There is no retry at this layer;
// on any failure the client stays Unauthenticated and the caller may
// rerun the whole handshake.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	c.state = Unauthenticated

	res, err := c.http.R().
		SetContext(ctx).
		Get(c.cfg.LogonPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch logon page")
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse logon page")
		return err
	}
	state := extractFormState(doc)
	if state.viewState == "" {
		span.SetStatus(codes.Error, "logon page carried no view state")
		return fmt.Errorf("%w: logon page carried no view state", ErrLoginFailed)
	}

	if err := c.handshakePause(ctx); err != nil {
		return err
	}

	res, err = c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"__EVENTTARGET":   state.eventTarget,
			"__EVENTARGUMENT": state.eventArgument,
			"__VIEWSTATE":     state.viewState,
			"uctrlLogon:cmdLogonGuest.x": "25",
			"uctrlLogon:cmdLogonGuest.y": "12",
		}).
		Post(c.cfg.LogonPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to post guest logon")
		return err
	}
	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse guest logon response")
		return err
	}
	state = extractFormState(doc)
	if state.viewState == "" {
		span.SetStatus(codes.Error, "legal notice carried no view state")
		return fmt.Errorf("%w: legal notice carried no view state", ErrLoginFailed)
	}
	c.state = LoggedInGuest

	if err := c.handshakePause(ctx); err != nil {
		return err
	}

	res, err = c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"__EVENTTARGET":   state.eventTarget,
			"__EVENTARGUMENT": state.eventArgument,
			"__VIEWSTATE":     state.viewState,
			"cmdYES.x":        "35",
			"cmdYES.y":        "10",
		}).
		Post(c.cfg.NoticePath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to confirm legal notice")
		return err
	}

	if !bytes.Contains(res.Body(), []byte(guestMarker)) {
		c.state = Unauthenticated
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return ErrLoginFailed
	}

	c.state = NoticeConfirmed
	return nil
}
