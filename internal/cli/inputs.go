package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/orbitsplat/internal/imageio"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/nodes"
	"github.com/roach88/orbitsplat/internal/trainer"
)

// referenceFlags are the inputs shared by train and bake.
type referenceFlags struct {
	Images      string
	Masks       string
	PoseCommand string
	PoseFile    string
	MaxPixels   int
}

func (r *referenceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.Images, "images", "", "directory of reference images (required)")
	cmd.Flags().StringVar(&r.Masks, "masks", "", "directory of reference masks (required)")
	cmd.Flags().StringVar(&r.PoseCommand, "poses", nodes.DefaultPoseCommand, "orbit pose command")
	cmd.Flags().StringVar(&r.PoseFile, "poses-file", "", "read the orbit pose command from a file")
	cmd.Flags().IntVar(&r.MaxPixels, "max-pixels", 0, "downsample references to at most this many pixels (0 keeps them)")
	_ = cmd.MarkFlagRequired("images")
	_ = cmd.MarkFlagRequired("masks")
}

// trainerOptions returns the run options the flags select.
func (r *referenceFlags) trainerOptions() []trainer.Option {
	var opts []trainer.Option
	if r.MaxPixels > 0 {
		opts = append(opts, trainer.WithMaxResolution(r.MaxPixels))
	}
	return opts
}

// command returns the pose command, preferring --poses-file.
func (r *referenceFlags) command(dirs nodes.Dirs) (string, error) {
	return poseCommand(r.PoseCommand, r.PoseFile, dirs)
}

func poseCommand(command, file string, dirs nodes.Dirs) (string, error) {
	if file == "" {
		return command, nil
	}
	data, err := os.ReadFile(dirs.ResolveInput(file))
	if err != nil {
		return "", fmt.Errorf("read pose command: %w", err)
	}
	return string(data), nil
}

// load reads the reference images and masks in file-name order.
func (r *referenceFlags) load(dirs nodes.Dirs) ([]*ir.Image, []*ir.Mask, error) {
	imagePaths, err := imageio.ListImages(dirs.ResolveInput(r.Images))
	if err != nil {
		return nil, nil, err
	}
	maskPaths, err := imageio.ListImages(dirs.ResolveInput(r.Masks))
	if err != nil {
		return nil, nil, err
	}

	ims := make([]*ir.Image, len(imagePaths))
	for i, p := range imagePaths {
		if ims[i], err = imageio.LoadImage(p); err != nil {
			return nil, nil, err
		}
	}
	masks := make([]*ir.Mask, len(maskPaths))
	for i, p := range maskPaths {
		if masks[i], err = imageio.LoadMask(p); err != nil {
			return nil, nil, err
		}
	}
	return ims, masks, nil
}

// referenceInputs builds the inputs shared by both optimization nodes.
func referenceInputs(ims []*ir.Image, masks []*ir.Mask, poses []ir.CameraPose) nodes.Values {
	return nodes.Values{
		"reference_images":             ims,
		"reference_masks":              masks,
		"reference_orbit_camera_poses": poses,
	}
}

// merge copies every value of src into dst and returns dst.
func merge(dst, src nodes.Values) nodes.Values {
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
