// Package fetch provides the resilient HTTP client used by all protocol
// handlers: bounded retries with linear backoff, per-attempt timeout and
// response validation helpers.
package fetch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/pkg/errors"
)

// Request describes one resilient fetch.
type Request struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration // per-attempt, client default if zero
}

// Result is a completed fetch with the body fully read.
type Result struct {
	Body        []byte
	ContentType string
	StatusCode  int
	Attempts    int
}

// ExhaustedError reports that every retry of a fetch failed.
type ExhaustedError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return errors.Wrapf(e.Last, "fetch exhausted after %d attempts for %s", e.Attempts, e.URL).Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// ContentTypeError reports a response content-type outside protocol
// expectations. Never retried.
type ContentTypeError struct {
	URL  string
	Got  string
	Want []string
}

func (e *ContentTypeError) Error() string {
	return errors.Errorf("unsupported content type %q for %s, want one of %v", e.Got, e.URL, e.Want).Error()
}

// Client retries transient failures with linear backoff. A non-2xx status
// counts as a failed attempt.
type Client struct {
	MaxRetries int           // default 3
	Backoff    time.Duration // initial, default 300ms; wait is Backoff*attempt

	HTTP  *http.Client
	sleep func(time.Duration) // injectable for tests
}

// NewClient makes a fetch client with the given retry budget.
func NewClient(maxRetries int, backoff, timeout time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if backoff <= 0 {
		backoff = 300 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		MaxRetries: maxRetries,
		Backoff:    backoff,
		HTTP:       &http.Client{Timeout: timeout},
		sleep:      time.Sleep,
	}
}

// Do runs the request, retrying up to MaxRetries times. Timeouts count as
// failed attempts, not a separate error class.
func (c *Client) Do(ctx context.Context, req Request) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		if attempt > 1 {
			wait := c.Backoff * time.Duration(attempt-1)
			log.Printf("[DEBUG] retry %d/%d for %s in %v", attempt, c.MaxRetries, req.URL, wait)
			c.sleep(wait)
		}

		res, err := c.once(ctx, req)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}
		lastErr = err
		log.Printf("[DEBUG] attempt %d for %s failed, %v", attempt, req.URL, err)

		if ctx.Err() != nil {
			break
		}
	}
	return nil, &ExhaustedError{URL: req.URL, Attempts: c.MaxRetries, Last: lastErr}
}

func (c *Client) once(ctx context.Context, req Request) (*Result, error) {
	attemptCtx := ctx
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.HTTP.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "can't make request for %s", req.URL)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "request failed for %s", req.URL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.Errorf("unexpected status %d for %s", resp.StatusCode, req.URL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read body for %s", req.URL)
	}

	return &Result{Body: body, ContentType: resp.Header.Get("Content-Type"), StatusCode: resp.StatusCode}, nil
}

// ValidateContentType checks the declared content-type against protocol
// expectations. The failure is a parse-stage error, not retried.
func ValidateContentType(url, got string, want ...string) error {
	if got == "" { // some relays omit the header, let the body check decide
		return nil
	}
	for _, w := range want {
		if strings.Contains(strings.ToLower(got), w) {
			return nil
		}
	}
	return &ContentTypeError{URL: url, Got: got, Want: want}
}

// LooksLikeXML is a cheap structural sniff for feed bodies.
func LooksLikeXML(body []byte) bool {
	s := strings.TrimSpace(string(body))
	return strings.HasPrefix(s, "<?xml") || strings.HasPrefix(s, "<rss") ||
		strings.HasPrefix(s, "<feed") || strings.HasPrefix(s, "<rdf")
}
