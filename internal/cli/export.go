package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExportResult describes the layout written by export.
type ExportResult struct {
	Path      string `json:"path"`
	Resources int    `json:"resources"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <out.json>",
		Short: "Write the project layout to a file",
		Long: `Open the project and write its layout as canonical JSON.

The project holds the config's resource files when any are listed,
otherwise the last stored checkpoint.

Examples:
  graphsync export scene.json
  graphsync export scene.json --db /tmp/scene.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runExport(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	ctx := cmd.Context()
	p, err := opts.openProject(ctx, cmd, cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	defer p.Close()

	if err := p.SaveResources(ctx, path); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	result := ExportResult{Path: path, Resources: len(p.Registry().IDs())}
	if formatter.Format == FormatJSON {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Exported %d resource(s) to %s\n", result.Resources, path)
	return nil
}
