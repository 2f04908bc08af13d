package contentful

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// syncPage is one page of the sync API response.
type syncPage struct {
	Items       []map[string]any `json:"items"`
	NextPageURL string           `json:"nextPageUrl"`
	NextSyncURL string           `json:"nextSyncUrl"`
}

// client pages through the Contentful sync API.
type client struct {
	http       *http.Client
	baseURL    string
	space      string
	env        string
	token      string
	limiter    *rate.Limiter
	maxRetries uint
	logger     *slog.Logger
}

// initialSync fetches every item of the space, following nextPageUrl until
// the response carries a nextSyncUrl.
func (c *client) initialSync(ctx context.Context) ([]map[string]any, error) {
	next := fmt.Sprintf("%s/spaces/%s/environments/%s/sync?initial=true",
		c.baseURL, url.PathEscape(c.space), url.PathEscape(c.env))

	var items []map[string]any
	for pages := 1; ; pages++ {
		page, err := c.fetch(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("sync page %d: %w", pages, err)
		}
		items = append(items, page.Items...)
		c.logger.Debug("sync page fetched", "page", pages, "items", len(page.Items))

		if page.NextPageURL == "" {
			if page.NextSyncURL == "" {
				return nil, fmt.Errorf("sync page %d: response has neither nextPageUrl nor nextSyncUrl", pages)
			}
			return items, nil
		}
		next = page.NextPageURL
	}
}

// fetch gets one page, waiting on the rate limiter before each attempt and
// retrying rate-limited and server-side failures.
func (c *client) fetch(ctx context.Context, pageURL string) (*syncPage, error) {
	op := func() (*syncPage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		return c.get(ctx, pageURL)
	}

	notify := func(err error, d time.Duration) {
		c.logger.Warn("contentful request failed, retrying", "error", err, "delay", d)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxRetries+1),
		backoff.WithNotify(notify),
	)
}

func (c *client) get(ctx context.Context, pageURL string) (*syncPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err := fmt.Errorf("rate limited: %s", resp.Status)
		if secs, convErr := strconv.Atoi(resp.Header.Get("X-Contentful-RateLimit-Reset")); convErr == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, err
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error: %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("unexpected status %s: %s", resp.Status, body))
	}

	var page syncPage
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return &page, nil
}
