package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/orbitsplat/internal/gaussian"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/nodes"
	"github.com/roach88/orbitsplat/internal/params"
	"github.com/roach88/orbitsplat/internal/trainer"
)

// TrainOptions holds flags for the train command.
type TrainOptions struct {
	*RootOptions
	referenceFlags
	Params   string
	InitMesh string
	SavePath string
	Seed     int64
}

// TrainResult is the output of the train command.
type TrainResult struct {
	Path       string `json:"path"`
	Gaussians  int    `json:"gaussians"`
	Iterations int    `json:"iterations"`
	SHDegree   int    `json:"sh_degree"`
}

// NewTrainCommand creates the train command.
func NewTrainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Reconstruct a 3D Gaussian Splatting scene",
		Long: `Optimize a 3D Gaussian Splatting scene against reference images and masks.

Orbit poses are generated from --poses, training parameters come from a
.cue or .yaml file (unset fields keep their defaults) and the trained scene
is written as a binary PLY to --save-path. [time(FORMAT)] in the save path
expands to the current time.

Examples:
  orbitsplat train --images refs --masks masks
  orbitsplat train --images refs --masks masks --params train.cue --save-path out/[time(%Y%m%d)].ply
  orbitsplat --db runs.db train --images refs --masks masks --init-mesh seed.obj`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(opts, cmd)
		},
	}

	opts.referenceFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Params, "params", "", "training parameter file (.cue, .yaml)")
	cmd.Flags().StringVar(&opts.InitMesh, "init-mesh", "", "mesh to initialize the Gaussians from")
	cmd.Flags().StringVarP(&opts.SavePath, "save-path", "o", nodes.DefaultGaussianSavePath, "where to write the PLY")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")

	return cmd
}

func runTrain(opts *TrainOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	dirs := opts.dirs()

	p := params.DefaultTraining()
	if opts.Params != "" {
		var err error
		if p, err = params.LoadTraining(dirs.ResolveInput(opts.Params)); err != nil {
			return f.Fail(ExitFailure, "invalid training parameters", err)
		}
	}
	command, err := opts.command(dirs)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to read pose command", err)
	}
	ims, masks, err := opts.load(dirs)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to load references", err)
	}

	trainerOpts := opts.trainerOptions()
	if opts.Seed != 0 {
		trainerOpts = append(trainerOpts, trainer.WithSeed(opts.Seed))
	}
	sess, err := openSession(cmd, opts.RootOptions, trainerOpts...)
	if err != nil {
		return err
	}
	res, err := trainScene(sess, f, opts, p, command, ims, masks)
	if closeErr := sess.close(); err == nil && closeErr != nil {
		return WrapExitError(ExitCommandError, "failed to shut down", closeErr)
	}
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return f.Success(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d Gaussians (%d iterations) to %s\n", res.Gaussians, res.Iterations, res.Path)
	return nil
}

// trainScene runs pose generation, optional mesh loading, splatting and
// saving as separate engine jobs.
func trainScene(sess *session, f *OutputFormatter, opts *TrainOptions, p params.Training, command string, ims []*ir.Image, masks []*ir.Mask) (TrainResult, error) {
	camposes, err := generatePoses(sess, ims, command)
	if err != nil {
		return TrainResult{}, f.Fail(ExitFailure, "pose generation failed", err)
	}

	in := merge(referenceInputs(ims, masks, camposes), nodes.FieldInputs(params.TrainingFields, p.Values()))
	if opts.InitMesh != "" {
		out, err := sess.execute("Load_3D_Mesh", nodes.Values{"mesh_file_path": opts.InitMesh}, nil)
		if err != nil {
			return TrainResult{}, f.Fail(ExitFailure, "failed to load mesh", err)
		}
		in["mesh_to_initialize_gaussian"] = out["mesh"]
	}

	out, err := sess.execute("Gaussian_Splatting", in, progress(f))
	if err != nil {
		return TrainResult{}, f.Fail(ExitFailure, "training failed", err)
	}
	art := out["raw_3DGS"].(*gaussian.Artifact)

	saved, err := sess.execute("Save_3DGS", nodes.Values{"raw_3DGS": art, "save_path": opts.SavePath}, nil)
	if err != nil {
		return TrainResult{}, f.Fail(ExitFailure, "failed to save scene", err)
	}

	return TrainResult{
		Path:       saved["path"].(string),
		Gaussians:  art.Len(),
		Iterations: art.Iterations(),
		SHDegree:   art.SHDegree(),
	}, nil
}

// generatePoses runs the pose node for the given references.
func generatePoses(sess *session, ims []*ir.Image, command string) ([]ir.CameraPose, error) {
	out, err := sess.execute("Generate_Orbit_Camera_Poses", nodes.Values{
		"reference_images":      ims,
		"generate_pose_command": command,
	}, nil)
	if err != nil {
		return nil, err
	}
	return out["orbit_camposes"].([]ir.CameraPose), nil
}

// progress reports optimization steps as verbose output.
func progress(f *OutputFormatter) trainer.Observer {
	return func(s trainer.Step) {
		if s.Gaussians > 0 {
			f.VerboseLog("iteration %d  loss %.6f  gaussians %d", s.Iteration, s.Loss, s.Gaussians)
			return
		}
		f.VerboseLog("iteration %d  loss %.6f", s.Iteration, s.Loss)
	}
}
