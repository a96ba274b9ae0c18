package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/project"
	"github.com/roach88/graphsync/internal/schema"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Output string // write to file instead of stdout
}

// SchemaResult is the JSON payload of the schema command.
type SchemaResult struct {
	Package string `json:"package"`
	Path    string `json:"path,omitempty"`
	Source  string `json:"source,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the CUE schema of the registered types",
		Long: `Generate the CUE definitions that validate layout records.

Each registered type becomes one definition. References are #Ref and
nested typed records are #Typed.

Examples:
  graphsync schema
  graphsync schema -o graphsync.cue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the schema to a file")

	return cmd
}

func runSchema(opts *SchemaOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	p, err := project.New()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	src, err := schema.Generate(p.Codec())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	if opts.Output == "" {
		if formatter.Format == FormatJSON {
			return formatter.Success(SchemaResult{Package: schema.PackageName, Source: src})
		}
		_, err := fmt.Fprint(formatter.Writer, src)
		return err
	}

	if err := os.WriteFile(opts.Output, []byte(src), 0o644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("write schema: %w", err))
	}
	if formatter.Format == FormatJSON {
		return formatter.Success(SchemaResult{Package: schema.PackageName, Path: opts.Output})
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema written to %s\n", opts.Output)
	return nil
}
