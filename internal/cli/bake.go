package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/orbitsplat/internal/imageio"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/mesh"
	"github.com/roach88/orbitsplat/internal/nodes"
	"github.com/roach88/orbitsplat/internal/params"
)

// BakeOptions holds flags for the bake command.
type BakeOptions struct {
	*RootOptions
	referenceFlags
	Mesh        string
	Params      string
	SavePath    string
	TexturePath string
	Resize      bool
	Retex       bool
}

// BakeResult is the output of the bake command.
type BakeResult struct {
	Path        string `json:"path"`
	TexturePath string `json:"texture_path,omitempty"`
	Vertices    int    `json:"vertices"`
	Triangles   int    `json:"triangles"`
	TextureSize [2]int `json:"texture_size"`
}

// NewBakeCommand creates the bake command.
func NewBakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BakeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bake",
		Short: "Bake reference images into a mesh texture",
		Long: `Optimize a mesh albedo texture (and optionally its geometry) so renders
from the orbit poses match the reference images.

Meshes without UVs get a generated atlas. The trained mesh is written to
--save-path; --texture-path also writes the baked texture as PNG.

Examples:
  orbitsplat bake --images refs --masks masks --mesh chair.obj
  orbitsplat bake --images refs --masks masks --mesh chair.glb --params bake.yaml --texture-path albedo.png`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBake(opts, cmd)
		},
	}

	opts.referenceFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Mesh, "mesh", "", "mesh to bake onto (required)")
	cmd.Flags().StringVar(&opts.Params, "params", "", "bake parameter file (.cue, .yaml)")
	cmd.Flags().StringVarP(&opts.SavePath, "save-path", "o", nodes.DefaultMeshSavePath, "where to write the trained mesh")
	cmd.Flags().StringVar(&opts.TexturePath, "texture-path", "", "also write the baked texture as PNG")
	cmd.Flags().BoolVar(&opts.Resize, "resize", false, "normalize the mesh into the unit cube before baking")
	cmd.Flags().BoolVar(&opts.Retex, "retex", false, "discard existing UVs and build a new atlas")
	_ = cmd.MarkFlagRequired("mesh")

	return cmd
}

func runBake(opts *BakeOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	dirs := opts.dirs()

	p := params.DefaultBake()
	if opts.Params != "" {
		var err error
		if p, err = params.LoadBake(dirs.ResolveInput(opts.Params)); err != nil {
			return f.Fail(ExitFailure, "invalid bake parameters", err)
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

	sess, err := openSession(cmd, opts.RootOptions, opts.trainerOptions()...)
	if err != nil {
		return err
	}
	res, err := bakeMesh(sess, f, opts, p, command, ims, masks)
	if closeErr := sess.close(); err == nil && closeErr != nil {
		return WrapExitError(ExitCommandError, "failed to shut down", closeErr)
	}
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return f.Success(res)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Saved mesh (%d vertices, %d triangles) to %s\n", res.Vertices, res.Triangles, res.Path)
	if res.TexturePath != "" {
		fmt.Fprintf(w, "Saved %dx%d texture to %s\n", res.TextureSize[0], res.TextureSize[1], res.TexturePath)
	}
	return nil
}

func bakeMesh(sess *session, f *OutputFormatter, opts *BakeOptions, p params.Bake, command string, ims []*ir.Image, masks []*ir.Mask) (BakeResult, error) {
	camposes, err := generatePoses(sess, ims, command)
	if err != nil {
		return BakeResult{}, f.Fail(ExitFailure, "pose generation failed", err)
	}

	loaded, err := sess.execute("Load_3D_Mesh", nodes.Values{
		"mesh_file_path": opts.Mesh,
		"resize":         opts.Resize,
		"retex":          opts.Retex,
	}, nil)
	if err != nil {
		return BakeResult{}, f.Fail(ExitFailure, "failed to load mesh", err)
	}

	in := merge(referenceInputs(ims, masks, camposes), nodes.FieldInputs(params.BakeFields, p.Values()))
	in["mesh"] = loaded["mesh"]
	out, err := sess.execute("Bake_Texture_To_Mesh", in, progress(f))
	if err != nil {
		return BakeResult{}, f.Fail(ExitFailure, "baking failed", err)
	}
	m := out["trained_mesh"].(*mesh.Mesh)
	tex := out["baked_texture"].([]*ir.Image)[0]

	saved, err := sess.execute("Save_3D_Mesh", nodes.Values{"mesh": m, "mesh_save_path": opts.SavePath}, nil)
	if err != nil {
		return BakeResult{}, f.Fail(ExitFailure, "failed to save mesh", err)
	}

	res := BakeResult{
		Path:        saved["path"].(string),
		Vertices:    m.VertexCount(),
		Triangles:   m.TriangleCount(),
		TextureSize: [2]int{tex.Width, tex.Height},
	}
	if opts.TexturePath != "" {
		res.TexturePath = opts.dirs().ResolveOutput(opts.TexturePath, sess.now())
		if err := imageio.SavePNG(res.TexturePath, tex); err != nil {
			return BakeResult{}, f.Fail(ExitCommandError, "failed to save texture", err)
		}
	}
	return res, nil
}
