// Package api is the HTTP transport to the conversation-analytics API.
// It exposes the three capabilities the ETL consumes: paginated session
// search, per-session sub-resource fetch, and dictionary listing.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/convista/convsync/pkg/types"
)

// RetryPolicy bounds the transport's retry behavior on idempotent reads.
type RetryPolicy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
}

// DefaultRetry matches the upstream operational guidance: ten attempts with
// exponential wait between 5 and 30 seconds.
var DefaultRetry = RetryPolicy{MaxAttempts: 10, MinWait: 5 * time.Second, MaxWait: 30 * time.Second}

// Client talks to one analytics deployment.
type Client struct {
	baseURL string
	httpc   *http.Client
	auth    Authenticator
	retry   RetryPolicy
	log     zerolog.Logger
}

// New builds a client for https://<domain>/api/v1 with the given
// authenticator injected at construction.
func New(domain string, auth Authenticator, retry RetryPolicy, log zerolog.Logger) *Client {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetry
	}
	return &Client{
		baseURL: "https://" + domain + "/api/v1",
		httpc:   &http.Client{Timeout: 60 * time.Second},
		auth:    auth,
		retry:   retry,
		log:     log,
	}
}

// NewForBase builds a client against an explicit base URL. Used by tests.
func NewForBase(base string, auth Authenticator, retry RetryPolicy, log zerolog.Logger) *Client {
	c := New("", auth, retry, log)
	c.baseURL = base
	return c
}

// searchPage is the envelope of the paginated session search.
type searchPage struct {
	Items []types.Record `json:"items"`
	Total int            `json:"total"`
}

// Search returns one page of session records matching the filter
// expression. Retried with exponential backoff: the search is idempotent,
// so transient network and 5xx failures are absorbed up to the retry
// budget. An exhausted budget surfaces as *types.FetchError.
func (c *Client) Search(ctx context.Context, filters string, skip, limit int) ([]types.Record, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("filters", filters)

	var page searchPage
	if err := c.getWithRetry(ctx, "/sessions", q, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// SessionDetail fetches one sub-resource of a session, e.g. /scores or
// /summary. Not retried: the caller treats a per-record failure as a local,
// recoverable condition and the record proceeds without the sub-resource.
func (c *Client) SessionDetail(ctx context.Context, sessionID, suffix string) (any, error) {
	var out any
	if err := c.get(ctx, "/sessions/"+sessionID+suffix, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dictionary lists a reference-data endpoint (/agents, /tags, ...). A limit
// of zero omits the parameter. Retried like Search.
func (c *Client) Dictionary(ctx context.Context, path string, limit int) ([]types.Record, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{}
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []types.Record
	if err := c.getWithRetry(ctx, path, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// get issues a single GET and decodes the JSON response into out.
// A 4xx status is a permanent error; 5xx and transport failures are
// retryable when the caller wraps this in getWithRetry.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.auth.Apply(req)

	c.log.Debug().Str("url", reqURL).Msg("requesting")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decoding %s response: %w", path, err))
	}
	return nil
}

// getWithRetry wraps get in the bounded exponential-backoff policy. Applied
// only to idempotent list reads, never to per-record detail fetches.
func (c *Client) getWithRetry(ctx context.Context, path string, q url.Values, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.MinWait
	bo.MaxInterval = c.retry.MaxWait
	bo.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := c.get(ctx, path, q, out)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Str("path", path).
				Msg("fetch attempt failed")
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.retry.MaxAttempts-1)), ctx))
	if err != nil {
		return &types.FetchError{URL: path, Attempts: attempt, Err: err}
	}
	return nil
}
