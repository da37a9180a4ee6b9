package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/orbitsplat/internal/params"
)

// Parameter set kinds.
const (
	KindTraining = "training"
	KindBake     = "bake"
)

// ParamsOptions holds flags for the params subcommands.
type ParamsOptions struct {
	*RootOptions
	Kind string
}

// ParamsValidation is the output of params validate.
type ParamsValidation struct {
	Valid  bool           `json:"valid"`
	Kind   string         `json:"kind"`
	Values map[string]any `json:"values,omitempty"`
}

// NewParamsCommand creates the params command and its subcommands.
func NewParamsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParamsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "params",
		Short: "Inspect and validate parameter files",
		Long: `Training and bake parameters are flat sets of named numeric options, each
with its own default and bounds. Parameter files are CUE (unified against
the embedded schema) or YAML; fields a file leaves out keep their defaults.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Kind, "kind", KindTraining, "parameter set (training|bake)")

	cmd.AddCommand(&cobra.Command{
		Use:           "validate <file>",
		Short:         "Validate a parameter file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParamsValidate(opts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "defaults",
		Short:         "Print the default parameters as YAML",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParamsDefaults(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "schema",
		Short:         "Print the CUE schema parameter files are checked against",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), params.Schema())
			return nil
		},
	})

	return cmd
}

func runParamsValidate(opts *ParamsOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	path = opts.dirs().ResolveInput(path)

	var values map[string]any
	switch opts.Kind {
	case KindTraining:
		p, err := params.LoadTraining(path)
		if err != nil {
			return f.Fail(ExitFailure, "invalid training parameters", err)
		}
		values = p.Map()
	case KindBake:
		p, err := params.LoadBake(path)
		if err != nil {
			return f.Fail(ExitFailure, "invalid bake parameters", err)
		}
		values = p.Map()
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown parameter kind %q", opts.Kind))
	}

	f.VerboseLog("Validated %s", path)
	if opts.Format == "json" {
		return f.Success(ParamsValidation{Valid: true, Kind: opts.Kind, Values: values})
	}
	return f.Success(fmt.Sprintf("✓ %s parameters valid", opts.Kind))
}

func runParamsDefaults(opts *ParamsOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var defaults any
	switch opts.Kind {
	case KindTraining:
		defaults = params.DefaultTraining()
	case KindBake:
		defaults = params.DefaultBake()
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown parameter kind %q", opts.Kind))
	}

	if opts.Format == "json" {
		return f.Success(defaults)
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode defaults", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
