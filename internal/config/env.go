package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds the environment overrides. Unset variables leave the config
// file untouched.
type Env struct {
	SourceType  string `env:"NOTACMS_SOURCE_TYPE"`
	StorageType string `env:"NOTACMS_STORAGE_TYPE"`
	StoragePath string `env:"NOTACMS_STORAGE_PATH"`
	FixturePath string `env:"NOTACMS_FIXTURE_PATH"`

	ContentfulSpace       string `env:"NOTACMS_CONTENTFUL_SPACE"`
	ContentfulAccessToken string `env:"NOTACMS_CONTENTFUL_ACCESS_TOKEN"`
	ContentfulEnvironment string `env:"NOTACMS_CONTENTFUL_ENVIRONMENT"`

	SyncName   string `env:"NOTACMS_SYNC_NAME"`
	NoMemcache *bool  `env:"NOTACMS_NO_MEMCACHE"`

	ListenerEnabled *bool  `env:"NOTACMS_LISTENER_ENABLED"`
	ListenerHost    string `env:"NOTACMS_LISTENER_HOST"`
	ListenerPort    *int   `env:"NOTACMS_LISTENER_PORT"`

	LogLevel string `env:"NOTACMS_LOG_LEVEL"`
}

// ParseEnv reads the overrides from environ, or from the process
// environment when environ is nil.
func ParseEnv(environ map[string]string) (Env, error) {
	var e Env
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// apply writes every set override into doc, replacing file values.
func (e Env) apply(doc map[string]any) {
	set := func(path []string, x any) {
		m := doc
		for _, key := range path[:len(path)-1] {
			next, ok := m[key].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[key] = next
			}
			m = next
		}
		m[path[len(path)-1]] = x
	}

	if e.SourceType != "" {
		set([]string{"source", "type"}, e.SourceType)
	}
	if e.StorageType != "" {
		set([]string{"storage", "type"}, e.StorageType)
	}
	if e.StoragePath != "" {
		set([]string{"storage", "options", "path"}, e.StoragePath)
	}
	if e.FixturePath != "" {
		set([]string{"source", "options", "path"}, e.FixturePath)
	}
	if e.ContentfulSpace != "" {
		set([]string{"source", "options", "space"}, e.ContentfulSpace)
	}
	if e.ContentfulAccessToken != "" {
		set([]string{"source", "options", "accessToken"}, e.ContentfulAccessToken)
	}
	if e.ContentfulEnvironment != "" {
		set([]string{"source", "options", "environment"}, e.ContentfulEnvironment)
	}
	if e.SyncName != "" {
		set([]string{"sync", "name"}, e.SyncName)
	}
	if e.NoMemcache != nil {
		set([]string{"sync", "noMemcache"}, *e.NoMemcache)
	}
	if e.ListenerEnabled != nil {
		set([]string{"listener", "enabled"}, *e.ListenerEnabled)
	}
	if e.ListenerHost != "" {
		set([]string{"listener", "host"}, e.ListenerHost)
	}
	if e.ListenerPort != nil {
		set([]string{"listener", "port"}, *e.ListenerPort)
	}
	if e.LogLevel != "" {
		set([]string{"logLevel"}, e.LogLevel)
	}
}
