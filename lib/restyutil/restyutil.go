// Package restyutil records full request/response exchanges to disk for
// scraper debugging. The registry's ASP.NET pages are stateful and hard
// to reproduce after the fact; a dump of the exact exchange is usually
// the only way to diagnose a parse failure.
package restyutil

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// Recorder writes one numbered file per exchange into its directory.
// The directory is cleared on creation so each run reads from zero.
type Recorder struct {
	dir     string
	counter atomic.Uint64
}

func NewRecorder(dir string) (*Recorder, error) {
	os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Recorder{dir: dir}, nil
}

// Attach hooks the recorder into a resty client. Errors writing dumps
// are logged, never surfaced into the request path.
func (r *Recorder) Attach(client *resty.Client) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		r.write(formatExchange(res))
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		r.write(fmt.Sprintf("---- REQUEST ----\n\n%s %s\n\nfailed: %s\n", req.Method, req.URL, err))
	})
}

func (r *Recorder) write(contents string) {
	id := strconv.FormatUint(r.counter.Add(1), 10)
	path := filepath.Join(r.dir, id+".http")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		slog.Warn("failed to write exchange dump", "path", path, "err", err)
	}
}

func formatHeaders(headers http.Header) string {
	var out strings.Builder
	for k, vals := range headers {
		for _, v := range vals {
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimRight(out.String(), "\n")
}

func formatRequestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err)
	}
	return string(data)
}

func formatExchange(res *resty.Response) string {
	responseUrl := res.Request.URL
	if redirected, err := res.RawResponse.Location(); err == nil {
		responseUrl = redirected.String()
	}

	return fmt.Sprintf(
		"---- REQUEST ----\n\n%s %s\n\n%s\n\n%s\n\n---- RESPONSE ----\n\n%d %s\n\n%s\n\n%s",
		res.Request.Method, res.Request.URL,
		formatHeaders(res.Request.RawRequest.Header),
		formatRequestBody(res.Request.RawRequest),
		res.StatusCode(), responseUrl,
		formatHeaders(res.Header()),
		res.String(),
	)
}
