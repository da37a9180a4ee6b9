package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/orbitsplat/internal/engine"
	"github.com/roach88/orbitsplat/internal/nodes"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	InputDir  string
	OutputDir string
	// Database is the run store. Empty disables run recording.
	Database string

	// IDGenerator overrides run IDs (for testing). Default: UUIDv7.
	IDGenerator engine.IDGenerator
	// Now overrides the wall clock (for testing).
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the orbitsplat CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "orbitsplat",
		Short: "orbitsplat - orbit poses, Gaussian splatting and texture baking",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `Orbit-camera pose generation, 3D Gaussian Splatting reconstruction and
differentiable texture baking, exposed as composable nodes.

Relative input paths resolve against --input-dir and relative save paths
against --output-dir. With --db every node execution is recorded as a run
together with its per-iteration loss history.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			slog.SetDefault(opts.logger(cmd.ErrOrStderr()))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.InputDir, "input-dir", ".", "root for relative input paths")
	cmd.PersistentFlags().StringVar(&opts.OutputDir, "output-dir", ".", "root for relative save paths")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite run store")

	// Add subcommands
	cmd.AddCommand(NewPosesCommand(opts))
	cmd.AddCommand(NewTrainCommand(opts))
	cmd.AddCommand(NewBakeCommand(opts))
	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewParamsCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewNodesCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// logger returns a text logger on w: Debug with --verbose, Info otherwise.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) dirs() nodes.Dirs {
	return nodes.Dirs{Input: o.InputDir, Output: o.OutputDir}
}
