// Package source fetches the JSON documents the pipeline ingests. A source
// location is an http(s) URL, a file:// URL or a plain filesystem path; each
// must hold a JSON array whose elements are the raw records.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RawRecord is one untyped element of a source document.
type RawRecord map[string]any

// Document is a fetched source: its records in document order. Elements that
// were not JSON objects are kept as nil entries so the caller can report them.
type Document struct {
	Location string
	Records  []RawRecord
}

// Fetcher retrieves and decodes one source location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (*Document, error)
}

var (
	// ErrUnsupportedScheme is returned for locations that are neither http(s),
	// file:// nor a bare path.
	ErrUnsupportedScheme = errors.New("unsupported source scheme")

	// ErrBadStatus wraps non-2xx HTTP responses.
	ErrBadStatus = errors.New("unexpected http status")

	// ErrNotArray is returned when a document is valid JSON but not an array.
	ErrNotArray = errors.New("source document is not a JSON array")
)

// Options tunes an HTTPFetcher. Zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration // per attempt, default 30s
	Attempts   uint          // total attempts, default 1
	RetryDelay time.Duration // base backoff delay, default 500ms
	RPS        float64       // fetch rate limit; <= 0 disables
}

// HTTPFetcher reads http(s) and filesystem locations. Transport failures and
// 5xx responses are retried; 4xx responses and decode errors are not.
type HTTPFetcher struct {
	Client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewHTTPFetcher returns a fetcher configured by opts.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Attempts == 0 {
		opts.Attempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	f := &HTTPFetcher{
		Client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
	if opts.RPS > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return f
}

// Fetch loads location and decodes its records.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) (*Document, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse source %q: %w", location, err)
	}

	var body []byte
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		body, err = f.getWithRetry(ctx, location)
	case "file":
		body, err = os.ReadFile(u.Path)
	case "":
		body, err = os.ReadFile(location)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch source %q: %w", location, err)
	}

	records, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode source %q: %w", location, err)
	}
	return &Document{Location: location, Records: records}, nil
}

func (f *HTTPFetcher) getWithRetry(ctx context.Context, location string) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			b, err := f.get(ctx, location)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.opts.Attempts),
		retry.Delay(f.opts.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Str("source", location).Uint("attempt", n+1).Msg("source fetch failed; retrying")
		}),
	)
	return body, err
}

// statusError carries the HTTP status so retryable can tell 4xx from 5xx.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("%s: %d", ErrBadStatus, e.code) }
func (e *statusError) Unwrap() error { return ErrBadStatus }

func (f *HTTPFetcher) get(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

// Decode parses a JSON array document. Numbers are kept as json.Number so
// integer fields and opaque numeric strings survive without float rounding.
func Decode(body []byte) ([]RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			return nil, ErrNotArray
		}
		return nil, err
	}

	out := make([]RawRecord, len(items))
	for i, item := range items {
		d := json.NewDecoder(bytes.NewReader(item))
		d.UseNumber()
		var rec map[string]any
		if err := d.Decode(&rec); err != nil {
			// Not an object; leave nil for the caller to reject.
			continue
		}
		out[i] = rec
	}
	return out, nil
}
