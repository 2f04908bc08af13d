// Package trigger serves the HTTP update listener.
//
// Routes:
//
//	GET|POST /sync/:source      start a background sync; {"success": true}
//	                            when :source names the configured source,
//	                            {"success": false} otherwise
//	GET      /content           every collection, relations as stubs
//	GET      /content/:type     one collection
//	GET      /content/:type/:id one record
//	GET      /healthz           liveness
//	GET      /metrics           Prometheus metrics, when configured
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/record"
)

// Orchestrator is the part of syncer.Orchestrator the server drives.
type Orchestrator interface {
	Sync(ctx context.Context) error
	Content(ctx context.Context) (record.Set, error)
	SourceName() string
}

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// ShutdownTimeout bounds Serve's graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
}

// Server is the update listener.
type Server struct {
	echo   *echo.Echo
	orch   Orchestrator
	logger *slog.Logger
	opts   Options

	// base outlives requests; background syncs run on it.
	base   context.Context
	cancel context.CancelFunc
	syncs  sync.WaitGroup
}

// New creates a server with all routes registered.
func New(orch Orchestrator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:   echo.New(),
		orch:   orch,
		logger: logger.With("component", "trigger"),
		opts:   opts,
		base:   base,
		cancel: cancel,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return path == "/healthz" || path == "/metrics"
			},
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			LogError:   true,
			LogMethod:  true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				attrs := []any{
					slog.String("method", v.Method),
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.Duration("latency", v.Latency),
				}
				if v.Error != nil {
					attrs = append(attrs, slog.Any("error", v.Error))
					s.logger.Error("request failed", attrs...)
				} else {
					s.logger.Debug("request", attrs...)
				}
				return nil
			},
		}),
		middleware.RecoverWithConfig(middleware.RecoverConfig{
			LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
				s.logger.Error("panic recovered", "error", err, "stack", string(stack))
				return nil
			},
		}),
	)

	e.GET("/sync/:source", s.handleSync)
	e.POST("/sync/:source", s.handleSync)
	e.GET("/sync/*", s.handleBadSync)
	e.POST("/sync/*", s.handleBadSync)
	e.GET("/content", s.handleContent)
	e.GET("/content/:type", s.handleCollection)
	e.GET("/content/:type/:id", s.handleRecord)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}
	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on addr until ctx is cancelled, then shuts down
// gracefully and waits for running syncs.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("update listener started", "address", addr, "source", s.orch.SourceName())
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("update listener stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	err := s.echo.Shutdown(shutdownCtx)
	s.cancel()
	s.Wait()
	return err
}

// Wait blocks until every sync started by the server has finished.
func (s *Server) Wait() {
	s.syncs.Wait()
}

type syncResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleSync(c echo.Context) error {
	name := c.Param("source")
	if name != s.orch.SourceName() {
		s.logger.Warn("invalid sync request", "source", name)
		return c.JSON(http.StatusOK, syncResponse{Success: false})
	}

	s.logger.Info("sync requested", "source", name)
	s.syncs.Add(1)
	go func() {
		defer s.syncs.Done()
		// Sync logs its own failures.
		_ = s.orch.Sync(s.base)
	}()
	return c.JSON(http.StatusOK, syncResponse{Success: true})
}

func (s *Server) handleBadSync(c echo.Context) error {
	s.logger.Warn("invalid sync request", "path", c.Request().URL.Path)
	return c.JSON(http.StatusOK, syncResponse{Success: false})
}

func (s *Server) content(c echo.Context) (record.Set, error) {
	set, err := s.orch.Content(c.Request().Context())
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return graph.Flatten(set), nil
}

func (s *Server) handleContent(c echo.Context) error {
	set, err := s.content(c)
	if err != nil {
		return err
	}
	out := make(map[string][]map[string]any, len(set))
	for typ, recs := range set {
		out[typ] = documents(recs)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCollection(c echo.Context) error {
	set, err := s.content(c)
	if err != nil {
		return err
	}
	recs, ok := set[c.Param("type")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no collection %q", c.Param("type")))
	}
	return c.JSON(http.StatusOK, documents(recs))
}

func (s *Server) handleRecord(c echo.Context) error {
	set, err := s.content(c)
	if err != nil {
		return err
	}
	key := record.Key{Type: c.Param("type"), ContentID: c.Param("id")}
	rec, ok := set.Find(key)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no record %s", key))
	}
	return c.JSON(http.StatusOK, rec.Document())
}

func documents(recs []*record.Record) []map[string]any {
	docs := make([]map[string]any, len(recs))
	for i, rec := range recs {
		docs[i] = rec.Document()
	}
	return docs
}
