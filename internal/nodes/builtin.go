package nodes

import (
	"context"

	"github.com/roach88/orbitsplat/internal/gaussian"
	"github.com/roach88/orbitsplat/internal/ir"
	"github.com/roach88/orbitsplat/internal/mesh"
	"github.com/roach88/orbitsplat/internal/params"
	"github.com/roach88/orbitsplat/internal/poses"
	"github.com/roach88/orbitsplat/internal/trainer"
)

// Categories group nodes in the host menu.
const (
	CategoryIO           = "ComfyUI3D/Import|Export"
	CategoryPreprocessor = "ComfyUI3D/Preprocessor"
	CategoryAlgorithm    = "ComfyUI3D/Algorithm"
)

// Default save paths.
const (
	DefaultMeshSavePath     = "Mesh_[time(%Y-%m-%d)].obj"
	DefaultGaussianSavePath = "3DGS_[time(%Y-%m-%d)].ply"
	DefaultPoseCommand      = "#([start_reference_image_index : end_reference_image_index], orbit_radius, elevation_angle [-90, 90], start_azimuth_angle [0, 360], end_azimuth_angle [0, 360])\n([0:30], 1.75, 0, 0, 360)"
)

const fovyField = "reference_orbit_camera_fovy"

func builtins() []*Node {
	return []*Node{
		loadMeshNode(),
		saveMeshNode(),
		saveGaussiansNode(),
		orbitPosesNode(),
		splattingNode(),
		bakeNode(),
	}
}

func loadMeshNode() *Node {
	return &Node{
		Name:     "Load_3D_Mesh",
		Category: CategoryIO,
		Inputs: []Port{
			{Name: "mesh_file_path", Type: TypeString, Default: ""},
			{Name: "resize", Type: TypeBool, Default: false},
			{Name: "renormal", Type: TypeBool, Default: true},
			{Name: "retex", Type: TypeBool, Default: false},
		},
		Outputs: []Port{{Name: "mesh", Type: TypeMesh}},
		run: func(_ context.Context, env *Env, in Values) (Values, error) {
			path := env.Dirs.ResolveInput(in["mesh_file_path"].(string))
			m, err := mesh.Load(path, mesh.LoadOptions{
				Resize:   in["resize"].(bool),
				Renormal: in["renormal"].(bool),
				Retex:    in["retex"].(bool),
			})
			if err != nil {
				return nil, err
			}
			env.logger("Load_3D_Mesh").Info("loaded mesh",
				"path", path,
				"vertices", m.VertexCount(),
				"triangles", m.TriangleCount(),
			)
			return Values{"mesh": m}, nil
		},
	}
}

func saveMeshNode() *Node {
	return &Node{
		Name:     "Save_3D_Mesh",
		Category: CategoryIO,
		Output:   true,
		Inputs: []Port{
			{Name: "mesh", Type: TypeMesh},
			{Name: "mesh_save_path", Type: TypeString, Default: DefaultMeshSavePath},
		},
		Outputs: []Port{{Name: "path", Type: TypeString}},
		run: func(_ context.Context, env *Env, in Values) (Values, error) {
			path := env.Dirs.ResolveOutput(in["mesh_save_path"].(string), env.now())
			if err := in["mesh"].(*mesh.Mesh).Write(path); err != nil {
				return nil, err
			}
			env.logger("Save_3D_Mesh").Info("saved mesh", "path", path)
			return Values{"path": path}, nil
		},
	}
}

func saveGaussiansNode() *Node {
	return &Node{
		Name:     "Save_3DGS",
		Category: CategoryIO,
		Output:   true,
		Inputs: []Port{
			{Name: "raw_3DGS", Type: TypeGaussians},
			{Name: "save_path", Type: TypeString, Default: DefaultGaussianSavePath},
		},
		Outputs: []Port{{Name: "path", Type: TypeString}},
		run: func(_ context.Context, env *Env, in Values) (Values, error) {
			path := env.Dirs.ResolveOutput(in["save_path"].(string), env.now())
			a := in["raw_3DGS"].(*gaussian.Artifact)
			if err := a.SavePLY(path); err != nil {
				return nil, err
			}
			env.logger("Save_3DGS").Info("saved gaussians", "path", path, "gaussians", a.Len())
			return Values{"path": path}, nil
		},
	}
}

func orbitPosesNode() *Node {
	return &Node{
		Name:     "Generate_Orbit_Camera_Poses",
		Category: CategoryPreprocessor,
		Inputs: []Port{
			{Name: "reference_images", Type: TypeImage},
			{Name: "generate_pose_command", Type: TypeString, Default: DefaultPoseCommand, Multiline: true},
		},
		Outputs: []Port{{Name: "orbit_camposes", Type: TypeCameraPoses}},
		run: func(_ context.Context, env *Env, in Values) (Values, error) {
			log := env.logger("Generate_Orbit_Camera_Poses")
			n := len(in["reference_images"].([]*ir.Image))
			res, err := poses.Generate(n, in["generate_pose_command"].(string))
			for _, w := range res.Warnings {
				log.Warn("discarded pose directive",
					"directive", w.Directive,
					"start", w.Start,
					"end", w.End,
					"reason", w.Reason,
				)
			}
			if err != nil {
				return nil, err
			}
			return Values{"orbit_camposes": res.Poses}, nil
		},
	}
}

// referencePorts are the inputs shared by both optimization nodes.
func referencePorts() []Port {
	return []Port{
		{Name: "reference_images", Type: TypeImage},
		{Name: "reference_masks", Type: TypeMask},
		{Name: "reference_orbit_camera_poses", Type: TypeCameraPoses},
	}
}

func references(in Values) trainer.References {
	return trainer.References{
		Images: in["reference_images"].([]*ir.Image),
		Masks:  in["reference_masks"].([]*ir.Mask),
		Poses:  in["reference_orbit_camera_poses"].([]ir.CameraPose),
	}
}

func splattingNode() *Node {
	fovy, _ := params.Lookup(params.TrainingFields, fovyField)
	inputs := append(referencePorts(), fieldPort(fovy))
	inputs = append(inputs, fieldPorts(params.TrainingFields, fovyField)...)
	inputs = append(inputs, Port{Name: "mesh_to_initialize_gaussian", Type: TypeMesh, Optional: true})

	return &Node{
		Name:     "Gaussian_Splatting",
		Category: CategoryAlgorithm,
		Inputs:   inputs,
		Outputs:  []Port{{Name: "raw_3DGS", Type: TypeGaussians}},
		run: func(ctx context.Context, env *Env, in Values) (Values, error) {
			p := params.TrainingFromValues(fieldValues(params.TrainingFields, in))
			opts := append([]trainer.Option{trainer.WithLogger(env.logger("Gaussian_Splatting"))}, env.TrainerOptions...)
			if m, ok := in["mesh_to_initialize_gaussian"].(*mesh.Mesh); ok {
				opts = append(opts, trainer.WithSeedMesh(m))
			}
			run, err := trainer.NewSplatRun(references(in), p, opts...)
			if err != nil {
				return nil, err
			}
			art, err := run.Train(ctx)
			if err != nil {
				return nil, err
			}
			return Values{"raw_3DGS": art}, nil
		},
	}
}

func bakeNode() *Node {
	fovy, _ := params.Lookup(params.BakeFields, fovyField)
	inputs := append(referencePorts(), fieldPort(fovy), Port{Name: "mesh", Type: TypeMesh})
	inputs = append(inputs, fieldPorts(params.BakeFields, fovyField)...)

	return &Node{
		Name:     "Bake_Texture_To_Mesh",
		Category: CategoryAlgorithm,
		Inputs:   inputs,
		Outputs: []Port{
			{Name: "trained_mesh", Type: TypeMesh},
			{Name: "baked_texture", Type: TypeImage},
		},
		run: func(ctx context.Context, env *Env, in Values) (Values, error) {
			p := params.BakeFromValues(fieldValues(params.BakeFields, in))
			opts := append([]trainer.Option{trainer.WithLogger(env.logger("Bake_Texture_To_Mesh"))}, env.TrainerOptions...)
			run, err := trainer.NewBakeRun(references(in), in["mesh"].(*mesh.Mesh), p, opts...)
			if err != nil {
				return nil, err
			}
			m, tex, err := run.Train(ctx)
			if err != nil {
				return nil, err
			}
			return Values{"trained_mesh": m, "baked_texture": []*ir.Image{tex}}, nil
		},
	}
}
