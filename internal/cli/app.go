package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/notacms/internal/config"
	"github.com/roach88/notacms/internal/hook"
	"github.com/roach88/notacms/internal/metrics"
	"github.com/roach88/notacms/internal/syncer"
)

// app is everything a command needs, built once from config.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	source  syncer.Source
	storage syncer.Storage
	metrics *metrics.Metrics
	orch    *syncer.Orchestrator
}

// loadConfig reads the config named by the root options, using the
// process environment.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config, nil)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger configures the default slog logger. --verbose wins over the
// configured level.
func newLogger(w io.Writer, verbose bool, level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

// newApp builds the configured source, storage and hooks and wires them
// into an orchestrator. Nothing is connected yet.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	source, err := Sources.Build(cfg.Source.Type, cfg.Source.Options)
	if err != nil {
		return nil, wrapSyncError("failed to build source", err)
	}
	storage, err := Storages.Build(cfg.Storage.Type, cfg.Storage.Options)
	if err != nil {
		return nil, wrapSyncError("failed to build storage", err)
	}

	hooks, err := compileHooks(cfg.Hooks)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to compile hooks", err)
	}

	m := metrics.New()
	orch := syncer.New(source, storage, syncer.Config{
		SourceName:    cfg.SourceName(),
		Hooks:         hooks,
		NoMemcache:    cfg.Sync.NoMemcache,
		SkipRehydrate: cfg.Sync.SkipRehydrate,
		Dangling:      cfg.DanglingPolicy(),
		Whitelist:     cfg.Sync.Whitelist,
		Blacklist:     cfg.Sync.Blacklist,
		Logger:        logger,
		Observer:      m,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		source:  source,
		storage: storage,
		metrics: m,
		orch:    orch,
	}, nil
}

func compileHooks(h config.Hooks) (syncer.Hooks, error) {
	var out syncer.Hooks
	var err error
	if out.BeforeRelationships, err = hook.Compile(h.BeforeRelationships); err != nil {
		return out, fmt.Errorf("%s: %w", syncer.HookBeforeRelationships, err)
	}
	if out.BeforeStorage, err = hook.Compile(h.BeforeStorage); err != nil {
		return out, fmt.Errorf("%s: %w", syncer.HookBeforeStorage, err)
	}
	if out.BeforeContent, err = hook.Compile(h.BeforeContent); err != nil {
		return out, fmt.Errorf("%s: %w", syncer.HookBeforeContent, err)
	}
	return out, nil
}

// Close releases the storage when it holds resources.
func (a *app) Close() {
	if c, ok := a.storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Error("error closing storage", "error", err)
		}
	}
}

// setup loads config, configures logging to w and builds the app.
func setup(opts *RootOptions, w io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(w, opts.Verbose, cfg.LogLevel)
	return newApp(cfg, logger)
}
