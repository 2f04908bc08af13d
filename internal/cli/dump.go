package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/record"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	Types []string
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print stored content as canonical JSON",
		Long: `Read the stored content through the content path (hooks and rehydration
included) and print it with relations as {type, contentId} stubs.

Text output is one canonical JSON object keyed by type.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Types, "type", "t", nil, "only dump these collections")

	return cmd
}

func runDump(cmd *cobra.Command, rootOpts *RootOptions, opts *DumpOptions) error {
	a, err := setup(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	content, err := a.orch.Content(cmd.Context())
	if err != nil {
		return wrapSyncError("read content failed", err)
	}
	flat := graph.Flatten(content)

	out := make(map[string]any, len(flat))
	for typ, recs := range flat {
		if len(opts.Types) > 0 && !containsFold(opts.Types, typ) {
			continue
		}
		docs := make([]any, len(recs))
		for i, rec := range recs {
			docs[i] = rec.Document()
		}
		out[typ] = docs
	}

	if rootOpts.Format == "json" {
		formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(out, "")
	}
	return writeCanonical(cmd.OutOrStdout(), out)
}

func writeCanonical(w io.Writer, v any) error {
	data, err := record.MarshalCanonical(v)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode content", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
