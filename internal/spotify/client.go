// Package spotify is a paced, retrying client for the parts of the Spotify
// Web API the collector needs.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/ademuri/workout-music-tools/internal/logging"
	"github.com/ademuri/workout-music-tools/internal/metrics"
)

const DefaultBaseURL = "https://api.spotify.com"

type Config struct {
	BaseURL       string
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Timeout       time.Duration
	UserAgent     string
}

func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		MaxAttempts:   5,
		RetryDelay:    time.Second,
		MaxRetryDelay: 30 * time.Second,
		Timeout:       30 * time.Second,
		UserAgent:     "workout-music-tools/1.0",
	}
}

// CallRecord describes one attempt against the API.
type CallRecord struct {
	Endpoint string
	Method   string
	Status   int
	Elapsed  time.Duration
	Attempt  int
	Err      string
	At       time.Time
}

// CallRecorder receives every attempt, successful or not.
type CallRecorder interface {
	RecordCall(ctx context.Context, call CallRecord) error
}

type Client struct {
	http     *resty.Client
	pacer    *Pacer
	tokens   TokenSource
	recorder CallRecorder
	cfg      Config
}

// NewClient builds a client. The pacer should be shared by every client that
// talks to the same API. recorder may be nil.
func NewClient(cfg Config, pacer *Pacer, tokens TokenSource, recorder CallRecorder) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if pacer == nil {
		pacer = NewPacer(DefaultDelay, nil)
	}

	h := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		http:     h,
		pacer:    pacer,
		tokens:   tokens,
		recorder: recorder,
		cfg:      cfg,
	}
}

// Get fetches endpoint and decodes the JSON body into out. endpoint may be a
// path relative to the base URL or an absolute "next" link.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			body, err := c.attempt(ctx, endpoint, params, attempts)
			if err != nil {
				return err
			}
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decoding %s: %w", endpoint, err)
			}
			return nil
		},
		retry.Attempts(uint(c.cfg.MaxAttempts)),
		retry.Delay(c.cfg.RetryDelay),
		retry.DelayType(c.retryDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= c.cfg.MaxAttempts {
				return
			}
			metrics.APIRetries.WithLabelValues(endpointLabel(endpoint)).Inc()
			logging.Debug().Err(err).Str("endpoint", endpointPath(endpoint)).Uint("attempt", n+1).Msg("retrying spotify call")
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if IsTransient(err) {
		return &FetchError{Endpoint: endpointPath(endpoint), Attempts: attempts, Err: err}
	}
	return fmt.Errorf("fetching %s: %w", endpointPath(endpoint), err)
}

func (c *Client) attempt(ctx context.Context, endpoint string, params map[string]string, n int) ([]byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	token, err := c.tokens.Token(ctx)
	if err != nil {
		err = fmt.Errorf("getting token: %w", err)
		c.record(ctx, CallRecord{
			Endpoint: endpointPath(endpoint),
			Method:   http.MethodGet,
			Elapsed:  time.Since(start),
			Attempt:  n,
			Err:      err.Error(),
			At:       start.UTC(),
		})
		return nil, err
	}

	start = time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(params).
		Get(endpoint)
	elapsed := time.Since(start)

	status := 0
	var body []byte
	switch {
	case err != nil:
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = &transportError{err}
		}
	default:
		status = resp.StatusCode()
		body = resp.Body()
		if status/100 != 2 {
			err = newAPIError(status, resp.Header().Get("Retry-After"), body)
			if status == http.StatusUnauthorized {
				c.tokens.Invalidate()
			}
		}
	}

	c.record(ctx, CallRecord{
		Endpoint: endpointPath(endpoint),
		Method:   http.MethodGet,
		Status:   status,
		Elapsed:  elapsed,
		Attempt:  n,
		Err:      errString(err),
		At:       start.UTC(),
	})
	return body, err
}

func (c *Client) record(ctx context.Context, call CallRecord) {
	metrics.ObserveCall(endpointLabel(call.Endpoint), call.Status, call.Elapsed)
	logging.Debug().
		Str("endpoint", call.Endpoint).
		Int("status", call.Status).
		Dur("latency", call.Elapsed).
		Int("attempt", call.Attempt).
		Msg("spotify call")

	if c.recorder == nil {
		return
	}
	// The call log is observability only; its failure must not change the
	// call's outcome.
	if err := c.recorder.RecordCall(context.WithoutCancel(ctx), call); err != nil {
		logging.Warn().Err(err).Str("endpoint", call.Endpoint).Msg("could not record api call")
	}
}

func newAPIError(status int, retryAfter string, body []byte) *APIError {
	e := &APIError{Status: status}
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	var er errorResponse
	if json.Unmarshal(body, &er) == nil {
		e.Message = er.Error.Message
	}
	return e
}

// retryDelay honours a server-provided Retry-After as is. Otherwise it backs
// off exponentially, capped at MaxRetryDelay.
func (c *Client) retryDelay(n uint, err error, config *retry.Config) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	d := retry.BackOffDelay(n, err, config)
	if c.cfg.MaxRetryDelay > 0 && d > c.cfg.MaxRetryDelay {
		d = c.cfg.MaxRetryDelay
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func endpointPath(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Path == "" {
		return endpoint
	}
	return u.Path
}

var idSegment = regexp.MustCompile(`/[0-9A-Za-z]{22}(/|$)`)

// endpointLabel collapses ids so metric label cardinality stays bounded.
func endpointLabel(endpoint string) string {
	return idSegment.ReplaceAllString(endpointPath(endpoint), "/{id}$1")
}
