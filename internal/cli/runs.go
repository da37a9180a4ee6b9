package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/orbitsplat/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Node string // optional - filter to one node
}

// RunView is one recorded run as printed by runs.
type RunView struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	Node       string         `json:"node"`
	Status     string         `json:"status"`
	Params     map[string]any `json:"params,omitempty"`
	ParamsHash string         `json:"params_hash"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// StepView is one recorded iteration.
type StepView struct {
	Iteration  int     `json:"iteration"`
	Loss       float64 `json:"loss"`
	Gaussians  int     `json:"gaussians,omitempty"`
	PositionLR float64 `json:"position_lr,omitempty"`
	ElapsedMS  int64   `json:"elapsed_ms"`
}

// RunDetail is a run with its loss history.
type RunDetail struct {
	Run   RunView    `json:"run"`
	Steps []StepView `json:"steps"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Query recorded runs",
		Long: `List the runs recorded in the run store, or show one run with its
per-iteration loss history.

Examples:
  orbitsplat --db runs.db runs
  orbitsplat --db runs.db runs --node Gaussian_Splatting
  orbitsplat --db runs.db runs 0190c7e1-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Database == "" {
				return NewExitError(ExitCommandError, "runs requires --db")
			}
			if len(args) == 1 {
				return runShowRun(opts, args[0], cmd)
			}
			return runListRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Node, "node", "", "filter to runs of this node")

	return cmd
}

func runListRuns(opts *RunsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, opts.Node)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	views := make([]RunView, len(runs))
	for i, r := range runs {
		views[i] = newRunView(r)
	}
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(views)
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	writeRunTable(w, views)
	return nil
}

func runShowRun(opts *RunsOptions, id string, cmd *cobra.Command) error {
	ctx := context.Background()
	f := opts.formatter(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	r, err := st.ReadRun(ctx, id)
	if errors.Is(err, store.ErrRunNotFound) {
		return f.Report(ExitFailure, "RUN_NOT_FOUND", fmt.Sprintf("run %s not found", id), err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	steps, err := st.RunSteps(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run steps", err)
	}

	detail := RunDetail{Run: newRunView(r), Steps: make([]StepView, len(steps))}
	for i, s := range steps {
		detail.Steps[i] = StepView{
			Iteration:  s.Iteration,
			Loss:       s.Loss,
			Gaussians:  s.Gaussians,
			PositionLR: s.PositionLR,
			ElapsedMS:  s.Elapsed.Milliseconds(),
		}
	}
	if opts.Format == "json" {
		return f.Success(detail)
	}
	writeRunDetail(cmd.OutOrStdout(), detail)
	return nil
}

func newRunView(r store.Run) RunView {
	v := RunView{
		ID:         r.ID,
		Seq:        r.Seq,
		Node:       r.Node,
		Status:     string(r.Status),
		Params:     r.Params,
		ParamsHash: r.ParamsHash,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
		ErrorCode:  r.ErrorCode,
		Error:      r.Error,
	}
	if !r.FinishedAt.IsZero() {
		v.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func writeRunTable(w io.Writer, runs []RunView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tNODE\tSTATUS\tSTARTED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Seq, r.ID, r.Node, r.Status, r.StartedAt, r.ErrorCode)
	}
	tw.Flush()
}

func writeRunDetail(w io.Writer, d RunDetail) {
	r := d.Run
	fmt.Fprintf(w, "Run: %s\n", r.ID)
	fmt.Fprintf(w, "  Seq:     %d\n", r.Seq)
	fmt.Fprintf(w, "  Node:    %s\n", r.Node)
	fmt.Fprintf(w, "  Status:  %s\n", r.Status)
	fmt.Fprintf(w, "  Started: %s\n", r.StartedAt)
	if r.FinishedAt != "" {
		fmt.Fprintf(w, "  Finished: %s\n", r.FinishedAt)
	}
	if r.ErrorCode != "" {
		fmt.Fprintf(w, "  Error:   %s %s\n", r.ErrorCode, r.Error)
	}
	if len(d.Steps) == 0 {
		return
	}

	fmt.Fprintf(w, "\nSteps (%d):\n", len(d.Steps))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ITER\tLOSS\tGAUSSIANS\tPOS_LR\tELAPSED")
	for _, s := range d.Steps {
		fmt.Fprintf(tw, "  %d\t%.6f\t%d\t%.3g\t%dms\n", s.Iteration, s.Loss, s.Gaussians, s.PositionLR, s.ElapsedMS)
	}
	tw.Flush()
}
