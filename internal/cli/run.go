package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/orbitsplat/internal/workflow"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter    string // workflow filter (glob pattern)
	GoldenDir string // compare traces against {dir}/{name}.golden
	Update    bool   // regenerate golden files
}

// WorkflowResult holds the result of a single workflow run.
type WorkflowResult struct {
	Name   string          `json:"name"`
	Pass   bool            `json:"pass"`
	Errors []string        `json:"errors,omitempty"`
	Trace  json.RawMessage `json:"trace,omitempty"`
}

// RunResult holds the overall result.
type RunResult struct {
	Workflows []WorkflowResult `json:"workflows"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <workflow-file-or-dir>",
		Short: "Run node workflows",
		Long: `Run YAML workflows: node steps wired together with @step.output references.

Steps execute on the engine in dependency order. A failing step skips the
steps that depend on it. A workflow passes when its assertions hold (or,
without assertions, when every step succeeded) and its trace matches the
golden file when --golden-dir is set.

Exit codes:
  0 - All workflows passed
  1 - One or more workflows failed
  2 - Command error (invalid paths, bad workflow files, etc.)

Examples:
  orbitsplat run ./workflows/orbit_splat.yaml
  orbitsplat run ./workflows --filter "splat-*"
  orbitsplat run ./workflows --golden-dir ./golden --update
  orbitsplat --db runs.db run ./workflows --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflows(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter workflows by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "compare traces against golden files in this directory")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")

	return cmd
}

func runWorkflows(opts *RunOptions, path string, cmd *cobra.Command) error {
	if opts.Update && opts.GoldenDir == "" {
		return NewExitError(ExitCommandError, "--update requires --golden-dir")
	}
	files, err := findWorkflowFiles(path, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find workflows", err)
	}

	result := RunResult{Workflows: []WorkflowResult{}, Total: len(files)}
	if len(files) == 0 {
		if opts.Format == "json" {
			return opts.formatter(cmd).Success(result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No workflows found.")
		return nil
	}

	sess, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	for _, file := range files {
		wr := runWorkflow(sess, opts, file, cmd)
		result.Workflows = append(result.Workflows, wr)
		if wr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	if err := sess.close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to shut down", err)
	}

	if opts.Format == "json" {
		if err := opts.formatter(cmd).Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}
	if result.Failed > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d workflow(s) failed", result.Failed), Reported: true}
	}
	return nil
}

// findWorkflowFiles returns path itself, or the YAML files under it.
func findWorkflowFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		// Only process .yaml and .yml files
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		// Apply filter if specified
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})
	return files, err
}

// runWorkflow executes one workflow file and reports it.
func runWorkflow(sess *session, opts *RunOptions, file string, cmd *cobra.Command) WorkflowResult {
	w := cmd.OutOrStdout()
	fail := func(name string, errs ...string) WorkflowResult {
		if opts.Format != "json" {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return WorkflowResult{Name: name, Errors: errs}
	}

	wf, err := workflow.Load(file)
	if err != nil {
		return fail(filepath.Base(file), fmt.Sprintf("load error: %v", err))
	}
	inputs, err := workflow.LoadInputs(wf)
	if err != nil {
		return fail(wf.Name, fmt.Sprintf("input error: %v", err))
	}

	runner := workflow.NewRunner(sess.engine, sess.registry, sess.logger)
	res, err := runner.Run(sess.ctx, wf, inputs)
	if err != nil {
		return fail(wf.Name, fmt.Sprintf("execution error: %v", err))
	}

	trace := workflow.NewTrace(res, opts.OutputDir)
	data, err := trace.Canonical()
	if err != nil {
		return fail(wf.Name, fmt.Sprintf("trace error: %v", err))
	}
	if opts.Verbose && opts.Format != "json" {
		fmt.Fprint(cmd.ErrOrStderr(), trace.Text())
	}

	var errs []string
	for _, f := range res.Failures {
		errs = append(errs, f.Error())
	}
	if len(wf.Assertions) == 0 {
		for _, s := range res.Steps {
			if s.Status != workflow.StatusSucceeded {
				errs = append(errs, fmt.Sprintf("step %s %s", s.Step, describeStep(s)))
			}
		}
	}

	if opts.GoldenDir != "" {
		golden := filepath.Join(opts.GoldenDir, wf.Name+".golden")
		if opts.Update {
			if err := writeGolden(golden, data); err != nil {
				errs = append(errs, fmt.Sprintf("golden update error: %v", err))
			}
		} else if err := compareGolden(golden, data); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		r := fail(wf.Name, errs...)
		r.Trace = data
		return r
	}
	if opts.Format != "json" {
		fmt.Fprintf(w, "✓ %s\n", wf.Name)
	}
	return WorkflowResult{Name: wf.Name, Pass: true, Trace: data}
}

func describeStep(s workflow.StepResult) string {
	if s.ErrorCode != "" {
		return s.Status + " with " + s.ErrorCode
	}
	return s.Status
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func compareGolden(path string, data []byte) error {
	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("golden file: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(data)) {
		return fmt.Errorf("trace does not match %s", path)
	}
	return nil
}
