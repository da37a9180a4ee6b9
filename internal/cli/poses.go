package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/orbitsplat/internal/imageio"
	"github.com/roach88/orbitsplat/internal/nodes"
	"github.com/roach88/orbitsplat/internal/poses"
)

// PosesOptions holds flags for the poses command.
type PosesOptions struct {
	*RootOptions
	Count   int
	Images  string
	Command string
	File    string
}

// NewPosesCommand creates the poses command.
func NewPosesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PosesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "poses",
		Short: "Generate orbit camera poses",
		Long: `Generate one orbit camera pose per reference image from a pose command.

Each directive has the form
  ([start:end], radius, elevation, start_azimuth, end_azimuth)
and assigns evenly spaced azimuths to the inclusive image range. The
directives must cover every image exactly once.

The image count comes from --count or from the number of images in
--images.

Examples:
  orbitsplat poses --count 30
  orbitsplat poses --count 4 --command "([0:3], 2, 30, 0, 360)"
  orbitsplat poses --images ./refs --command-file poses.txt --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoses(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 0, "number of reference images")
	cmd.Flags().StringVar(&opts.Images, "images", "", "count the images in this directory")
	cmd.Flags().StringVar(&opts.Command, "command", nodes.DefaultPoseCommand, "pose command")
	cmd.Flags().StringVar(&opts.File, "command-file", "", "read the pose command from a file")
	cmd.MarkFlagsMutuallyExclusive("count", "images")
	cmd.MarkFlagsMutuallyExclusive("command", "command-file")

	return cmd
}

func runPoses(opts *PosesOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	dirs := opts.dirs()

	n := opts.Count
	if opts.Images != "" {
		paths, err := imageio.ListImages(dirs.ResolveInput(opts.Images))
		if err != nil {
			return f.Fail(ExitCommandError, "failed to list images", err)
		}
		n = len(paths)
	}
	if n < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid image count %d", n))
	}

	command, err := poseCommand(opts.Command, opts.File, dirs)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to read pose command", err)
	}

	res, err := poses.Generate(n, command)
	for _, w := range res.Warnings {
		slog.Warn("discarded pose directive", "directive", w.Directive, "start", w.Start, "end", w.End, "reason", w.Reason)
	}
	if err != nil {
		return f.Fail(ExitFailure, "pose generation failed", err)
	}

	if opts.Format == "json" {
		return f.Success(res)
	}
	w := cmd.OutOrStdout()
	for i, p := range res.Poses {
		fmt.Fprintf(w, "%4d  radius=%g elevation=%g azimuth=%g\n", i, p.Radius, p.Elevation, p.Azimuth)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}
