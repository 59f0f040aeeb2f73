package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Path      string   `json:"path"`
	Owners    []string `json:"owners,omitempty"`
	Threshold int      `json:"threshold,omitempty"`
	Database  string   `json:"database,omitempty"`
}

func (r ValidationResult) String() string {
	return fmt.Sprintf("✓ %s: %d owners (%s), threshold %d, database %s",
		r.Path, len(r.Owners), strings.Join(r.Owners, ", "), r.Threshold, r.Database)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a config file",
		Long: `Validate a .cue or .yaml config file without touching any database.

The file is checked against the config schema, environment overrides are
applied, and the resulting owner registry is built exactly as init would
build it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	cfg, err := config.Load(path)
	if err != nil {
		return f.Fail(ExitFailure, err)
	}
	f.VerboseLog("loaded %s", path)

	registry, err := cfg.Registry()
	if err != nil {
		return f.Fail(ExitFailure, err)
	}

	view := newOwnersView(registry, cfg.Database)
	return f.Success(ValidationResult{
		Valid:     true,
		Path:      path,
		Owners:    view.Owners,
		Threshold: view.Threshold,
		Database:  view.Database,
	})
}
