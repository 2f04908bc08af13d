package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ValidateResult is the JSON payload of a successful validation.
type ValidateResult struct {
	Source   string `json:"source"`
	Storage  string `json:"storage"`
	Listener string `json:"listener,omitempty"`
	Hooks    int    `json:"hooks"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration without connecting to anything",
		Long: `Load the configuration, check it against the schema, build the selected
source and storage variants and compile every hook rule.

Nothing is connected and no content is fetched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts)
		},
	}
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions) error {
	a, err := setup(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	result := ValidateResult{
		Source:  cfg.SourceName(),
		Storage: cfg.Storage.Type,
		Hooks:   len(cfg.Hooks.BeforeRelationships) + len(cfg.Hooks.BeforeStorage) + len(cfg.Hooks.BeforeContent),
	}
	if cfg.Listener.Enabled {
		result.Listener = cfg.Listener.Address()
	}

	var text strings.Builder
	fmt.Fprintf(&text, "✓ config valid\n")
	fmt.Fprintf(&text, "  source:   %s (%s)\n", result.Source, cfg.Source.Type)
	fmt.Fprintf(&text, "  storage:  %s\n", result.Storage)
	if result.Listener != "" {
		fmt.Fprintf(&text, "  listener: %s\n", result.Listener)
	}
	fmt.Fprintf(&text, "  hooks:    %d rules", result.Hooks)

	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(result, text.String())
}
