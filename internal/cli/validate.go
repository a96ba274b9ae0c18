package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/project"
	"github.com/roach88/graphsync/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                  `json:"valid"`
	Files     int                   `json:"files"`
	Resources int                   `json:"resources"`
	Errors    []FileValidationError `json:"errors,omitempty"`
}

// FileValidationError is a schema error tagged with the layout it came from.
type FileValidationError struct {
	File string `json:"file"`
	schema.ValidationError
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <layout.json>...",
		Short: "Validate layout files against the generated schema",
		Long: `Validate JSON layout files against the CUE schema generated from the
registered types, without loading them into a project.

Every record must be a single-key typed record whose type is known and
whose fields satisfy that type's definition.

Exit codes:
  0 - All layouts valid
  1 - One or more records invalid
  2 - Command error (unreadable file, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	p, err := project.New()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	s, err := schema.Compile(p.Codec())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	result := ValidationResult{Valid: true, Files: len(paths)}
	for _, path := range paths {
		layout, skipped, err := project.ReadLayout(path)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeLayout, err)
		}
		formatter.VerboseLog("Validating %d record(s) in %s", len(layout), path)
		result.Resources += len(layout) + len(skipped)

		for _, e := range skipped {
			result.Errors = append(result.Errors, FileValidationError{
				File:            path,
				ValidationError: schema.ValidationError{ID: e.ID, Code: schema.ErrNotTyped, Message: e.Err.Error()},
			})
		}
		for _, verr := range s.ValidateLayout(layout) {
			result.Errors = append(result.Errors, FileValidationError{File: path, ValidationError: verr})
		}
	}

	if len(result.Errors) > 0 {
		result.Valid = false
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == FormatJSON {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All layouts valid (%d resource(s) in %d file(s))\n", result.Resources, result.Files)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == FormatJSON {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	file := ""
	for _, err := range errs {
		if err.File != file {
			file = err.File
			fmt.Fprintln(formatter.Writer, file)
		}
		fmt.Fprintf(formatter.Writer, "  %s\n", err.ValidationError.Error())
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
