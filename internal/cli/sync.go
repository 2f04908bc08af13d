package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// SyncResult is the JSON payload of a successful sync.
type SyncResult struct {
	Source      string         `json:"source"`
	Collections map[string]int `json:"collections"`
	Records     int            `json:"records"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync from the configured source into storage",
		Long: `Fetch the full content of the configured source, resolve its relations
and replace every fetched collection in storage.

Examples:
  notacms sync -c notacms.cue
  NOTACMS_SOURCE_TYPE=fixture NOTACMS_FIXTURE_PATH=blog.yaml notacms sync`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}
}

func runSync(cmd *cobra.Command, rootOpts *RootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.Sync(ctx); err != nil {
		return wrapSyncError("sync failed", err)
	}

	// Reading back confirms what a consumer will see.
	content, err := a.orch.Content(ctx)
	if err != nil {
		return wrapSyncError("read after sync failed", err)
	}

	result := SyncResult{
		Source:      a.orch.SourceName(),
		Collections: make(map[string]int, len(content)),
		Records:     content.Len(),
	}
	for typ, recs := range content {
		result.Collections[typ] = len(recs)
	}

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	text := fmt.Sprintf("synced %d records in %d collections from %s",
		result.Records, len(result.Collections), result.Source)
	return formatter.Success(result, text)
}
