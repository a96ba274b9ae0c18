package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/graphsync/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Type string // only list resources of this type
}

// InspectResult lists the checkpoint history and stored resources.
type InspectResult struct {
	Database    string           `json:"database"`
	Checkpoints []CheckpointInfo `json:"checkpoints"`
	Resources   []ResourceInfo   `json:"resources"`
}

// CheckpointInfo is one row of checkpoint history.
type CheckpointInfo struct {
	Seq        int64  `json:"seq"`
	Label      string `json:"label"`
	Resources  int    `json:"resources"`
	Changed    int    `json:"changed"`
	LayoutHash string `json:"layout_hash"`
}

// ResourceInfo is the stored metadata of one resource.
type ResourceInfo struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	ContentHash   string `json:"content_hash"`
	CheckpointSeq int64  `json:"checkpoint_seq"`
}

// Text renders the result for text output.
func (r InspectResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s\n", r.Database)

	fmt.Fprintf(&b, "\nCheckpoints (%d):\n", len(r.Checkpoints))
	for _, c := range r.Checkpoints {
		fmt.Fprintf(&b, "  #%d %-16s %4d resource(s) %4d changed\n", c.Seq, c.Label, c.Resources, c.Changed)
	}

	fmt.Fprintf(&b, "\nResources (%d):\n", len(r.Resources))
	for _, res := range r.Resources {
		name := res.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(&b, "  %-12s %-20s %s (since #%d)\n", res.Type, name, res.ID, res.CheckpointSeq)
	}
	return b.String()
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show checkpoint history and stored resources",
		Long: `List the checkpoints and resources stored in the database.

Each resource shows the checkpoint that last changed it.

Examples:
  graphsync inspect
  graphsync inspect --type Graph
  graphsync inspect --db /tmp/scene.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "only list resources of this type")

	return cmd
}

func runInspect(opts *InspectOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	if _, err := os.Stat(cfg.Database); errors.Is(err, os.ErrNotExist) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Errorf("database not found: %s", cfg.Database))
	}

	s, err := store.Open(cfg.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	defer s.Close()

	ctx := cmd.Context()
	checkpoints, err := s.Checkpoints(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	rows, err := s.ListResources(ctx, opts.Type)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}

	result := InspectResult{
		Database:    cfg.Database,
		Checkpoints: make([]CheckpointInfo, 0, len(checkpoints)),
		Resources:   make([]ResourceInfo, 0, len(rows)),
	}
	for _, c := range checkpoints {
		result.Checkpoints = append(result.Checkpoints, CheckpointInfo{
			Seq:        c.Seq,
			Label:      c.Label,
			Resources:  c.Resources,
			Changed:    c.Changed,
			LayoutHash: c.LayoutHash,
		})
	}
	for _, r := range rows {
		result.Resources = append(result.Resources, ResourceInfo{
			ID:            r.ID,
			Type:          r.TypeName,
			Name:          r.Name,
			ContentHash:   r.ContentHash,
			CheckpointSeq: r.CheckpointSeq,
		})
	}

	return formatter.Success(result)
}
