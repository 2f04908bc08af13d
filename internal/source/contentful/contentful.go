// Package contentful implements a source that reads a Contentful space
// through the Content Delivery sync API.
//
// Entries are grouped by content type id, assets under "Asset". Link
// fields are left as Contentful link objects and recognized by the key
// function LinkKeys builds for one fetched set. Entry links do not carry a
// content type, so the function types them through an id to type index of
// that set. The Source itself keeps no per-fetch state.
package contentful

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/notacms/internal/record"
	"github.com/roach88/notacms/internal/syncer"
)

// Defaults applied by New.
const (
	DefaultBaseURL     = "https://cdn.contentful.com"
	DefaultEnvironment = "master"
	DefaultLocale      = "en-US"
	DefaultRateLimit   = 10
	DefaultMaxRetries  = 3
)

// AssetType is the collection assets are stored under.
const AssetType = "Asset"

// Options configures a Contentful source.
type Options struct {
	Space       string
	AccessToken string
	Environment string
	Locale      string
	// SyncAssets includes assets as the Asset collection.
	SyncAssets bool
	BaseURL    string
	// RateLimit is the maximum number of requests per second.
	RateLimit  float64
	MaxRetries uint
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Source reads a Contentful space.
type Source struct {
	opts   Options
	logger *slog.Logger
	client *client
}

// New creates a source. Credentials are checked by Connect.
func New(opts Options) *Source {
	if opts.Environment == "" {
		opts.Environment = DefaultEnvironment
	}
	if opts.Locale == "" {
		opts.Locale = DefaultLocale
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{opts: opts, logger: logger.With("source", "contentful")}
}

// Connect validates the credentials and prepares the API client.
func (s *Source) Connect(context.Context) error {
	if s.opts.Space == "" || s.opts.AccessToken == "" {
		return syncer.NewConfigError("contentful: space and accessToken are required")
	}
	s.client = &client{
		http:       s.opts.HTTPClient,
		baseURL:    s.opts.BaseURL,
		space:      s.opts.Space,
		env:        s.opts.Environment,
		token:      s.opts.AccessToken,
		limiter:    rate.NewLimiter(rate.Limit(s.opts.RateLimit), 1),
		maxRetries: s.opts.MaxRetries,
		logger:     s.logger,
	}
	return nil
}

// Records fetches the whole space.
func (s *Source) Records(ctx context.Context) (record.Set, error) {
	if s.client == nil {
		return nil, fmt.Errorf("contentful: not connected")
	}
	items, err := s.client.initialSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("contentful: %w", err)
	}

	set := record.Set{}
	for _, item := range items {
		sys := asMap(item["sys"])
		id, _ := sys["id"].(string)
		if id == "" {
			continue
		}

		var typ string
		switch sys["type"] {
		case "Entry":
			typ = contentTypeID(sys)
			if typ == "" {
				s.logger.Warn("entry without content type skipped", "id", id)
				continue
			}
		case "Asset":
			if !s.opts.SyncAssets {
				continue
			}
			typ = AssetType
		default:
			// Deletions only appear in delta syncs.
			continue
		}
		set.Add(s.record(typ, id, sys, asMap(item["fields"])))
	}

	s.logger.Info("contentful records fetched", "items", len(items), "types", len(set), "records", set.Len())
	return set, nil
}

// record flattens one item to the configured locale and copies the sys
// metadata worth keeping.
func (s *Source) record(typ, id string, sys, fields map[string]any) *record.Record {
	out := make(map[string]any, len(fields)+4)
	for name, localized := range fields {
		if byLocale, ok := localized.(map[string]any); ok {
			if v, ok := byLocale[s.opts.Locale]; ok {
				out[name] = record.Normalize(v)
			}
		}
	}
	for _, name := range []string{"createdAt", "updatedAt", "revision"} {
		if v, ok := sys[name]; ok {
			out[name] = record.Normalize(v)
		}
	}
	out["sys"] = record.Normalize(sys)
	return record.New(typ, id, out)
}

func contentTypeID(sys map[string]any) string {
	ct := asMap(asMap(sys["contentType"])["sys"])
	id, _ := ct["id"].(string)
	return id
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
