package cli

import (
	"fmt"

	"github.com/roach88/notacms/internal/registry"
	"github.com/roach88/notacms/internal/source/contentful"
	"github.com/roach88/notacms/internal/source/fixture"
	"github.com/roach88/notacms/internal/store"
	"github.com/roach88/notacms/internal/syncer"
)

// DefaultDatabase is the SQLite path used when storage.options.path is
// not set.
const DefaultDatabase = "notacms.db"

// Sources and Storages hold the variants selectable from config.
var (
	Sources  = registry.New[syncer.Source]("source")
	Storages = registry.New[syncer.Storage]("storage")
)

func init() {
	Sources.MustRegister("contentful", func(o registry.Options) (syncer.Source, error) {
		retries := o.Int("maxRetries", contentful.DefaultMaxRetries)
		if retries < 0 {
			return nil, syncer.NewConfigError(fmt.Sprintf("contentful: maxRetries must not be negative, got %d", retries))
		}
		return contentful.New(contentful.Options{
			Space:       o.String("space", ""),
			AccessToken: o.String("accessToken", ""),
			Environment: o.String("environment", ""),
			Locale:      o.String("locale", ""),
			SyncAssets:  o.Bool("syncAssets", true),
			BaseURL:     o.String("baseUrl", ""),
			RateLimit:   o.Float("rateLimit", contentful.DefaultRateLimit),
			MaxRetries:  uint(retries),
		}), nil
	})
	Sources.MustRegister("fixture", func(o registry.Options) (syncer.Source, error) {
		path, err := o.Require("path")
		if err != nil {
			return nil, syncer.NewConfigError("fixture: " + err.Error())
		}
		return fixture.New(path), nil
	})

	Storages.MustRegister("sqlite", func(o registry.Options) (syncer.Storage, error) {
		return store.New(o.String("path", DefaultDatabase)), nil
	})
	Storages.MustRegister("memory", func(registry.Options) (syncer.Storage, error) {
		return store.NewMemory(), nil
	})
}
