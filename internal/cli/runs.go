package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notacms/internal/syncer"
)

// runReader is implemented by storages whose sync log can be listed.
type runReader interface {
	ReadRuns(ctx context.Context, limit int) ([]syncer.Run, error)
}

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	Limit int
}

// RunView is the JSON form of one sync log entry.
type RunView struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Records    int       `json:"records"`
	Dangling   int       `json:"dangling"`
	Error      string    `json:"error,omitempty"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent syncs from the storage sync log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "number of runs to show (0 for all)")

	return cmd
}

func runRuns(cmd *cobra.Command, rootOpts *RootOptions, opts *RunsOptions) error {
	a, err := setup(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	reader, ok := a.storage.(runReader)
	if !ok {
		return &ExitError{
			Code:    ExitCommandError,
			Message: fmt.Sprintf("storage %q keeps no sync log", a.cfg.Storage.Type),
		}
	}
	if err := a.storage.Connect(cmd.Context()); err != nil {
		return wrapSyncError("failed to connect storage", err)
	}

	runs, err := reader.ReadRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read sync log", err)
	}

	views := make([]RunView, len(runs))
	var text strings.Builder
	for i, r := range runs {
		views[i] = RunView{
			ID:         r.ID,
			Source:     r.Source,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
			Records:    r.Records,
			Dangling:   r.Dangling,
			Error:      r.Err,
		}
		status := "ok"
		if r.Err != "" {
			status = "failed: " + r.Err
		}
		if i > 0 {
			text.WriteByte('\n')
		}
		fmt.Fprintf(&text, "%s  %s  %s  records=%d dangling=%d  %s",
			r.ID, r.Source, r.StartedAt.Format(time.RFC3339), r.Records, r.Dangling, status)
	}
	if len(runs) == 0 {
		text.WriteString("no syncs recorded")
	}

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(views, text.String())
}
