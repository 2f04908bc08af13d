package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/notacms/internal/trigger"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	Host string
	Port int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the update listener",
		Long: `Serve the update listener: GET or POST /sync/<source> starts a sync in the
background, /content serves the stored content and /metrics exposes
Prometheus metrics.

The listener must be enabled in config (listener.enabled or
NOTACMS_LISTENER_ENABLED). With sync.onStart set, one sync runs before
the listener starts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "listen host (overrides listener.host)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "listen port (overrides listener.port)")

	return cmd
}

func runServe(cmd *cobra.Command, rootOpts *RootOptions, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	listener := a.cfg.Listener
	if !listener.Enabled {
		return &ExitError{Code: ExitCommandError, Message: "update listener is disabled (set listener.enabled)"}
	}
	if opts.Host != "" {
		listener.Host = opts.Host
	}
	if opts.Port != 0 {
		listener.Port = opts.Port
	}

	if a.cfg.Sync.OnStart {
		// A failed startup sync is logged by the orchestrator; the
		// listener still starts so a later trigger can retry.
		_ = a.orch.Sync(ctx)
	}

	srv := trigger.New(a.orch, trigger.Options{
		Logger:  a.logger,
		Metrics: a.metrics.Handler(),
	})
	if err := srv.Serve(ctx, listener.Address()); err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("listener on %s failed", listener.Address()), err)
	}
	return nil
}
