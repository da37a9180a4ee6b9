package params

// Bake configures one texture-baking run.
type Bake struct {
	TrainingIterations   int     `json:"training_iterations" yaml:"training_iterations"`
	BatchSize            int     `json:"batch_size" yaml:"batch_size"`
	TextureLearningRate  float64 `json:"texture_learning_rate" yaml:"texture_learning_rate"`
	TrainMeshGeometry    bool    `json:"train_mesh_geometry" yaml:"train_mesh_geometry"`
	GeometryLearningRate float64 `json:"geometry_learning_rate" yaml:"geometry_learning_rate"`
	MSSSIMLossWeight     float64 `json:"ms_ssim_loss_weight" yaml:"ms_ssim_loss_weight"`
	FovY                 float64 `json:"reference_orbit_camera_fovy" yaml:"reference_orbit_camera_fovy"`
	TextureResolution    int     `json:"texture_resolution" yaml:"texture_resolution"`
}

// BakeFields lists every Bake option with its default and bounds.
var BakeFields = []Field{
	{Name: "training_iterations", Kind: KindInt, Default: 1000, Min: 0, Max: 100000, Step: 1},
	{Name: "batch_size", Kind: KindInt, Default: 5, Min: 1, Max: Unbounded, Step: 1},
	{Name: "texture_learning_rate", Kind: KindFloat, Default: 0.1, Min: 0, Max: 1, Step: 0.01},
	{Name: "train_mesh_geometry", Kind: KindBool, Default: 0, Min: 0, Max: 1},
	{Name: "geometry_learning_rate", Kind: KindFloat, Default: 0.01, Min: 0, Max: 0.1, Step: 0.001},
	{Name: "ms_ssim_loss_weight", Kind: KindFloat, Default: 0.5, Min: 0, Max: 1, Step: 0.01},
	{Name: "reference_orbit_camera_fovy", Kind: KindFloat, Default: 49.1, Min: 0, Max: 180, Step: 0.1},
	{Name: "texture_resolution", Kind: KindInt, Default: 512, Min: 8, Max: 8192, Step: 1},
}

// DefaultBake returns the default bake configuration.
func DefaultBake() Bake {
	return Bake{
		TrainingIterations:   1000,
		BatchSize:            5,
		TextureLearningRate:  0.1,
		GeometryLearningRate: 0.01,
		MSSSIMLossWeight:     0.5,
		FovY:                 49.1,
		TextureResolution:    512,
	}
}

// NewBake validates b and returns it.
func NewBake(b Bake) (Bake, error) {
	if err := validate(BakeFields, b.Values()); err != nil {
		return Bake{}, err
	}
	return b, nil
}

// Values returns every field keyed by its option name.
func (b Bake) Values() map[string]float64 {
	return map[string]float64{
		"training_iterations":         float64(b.TrainingIterations),
		"batch_size":                  float64(b.BatchSize),
		"texture_learning_rate":       b.TextureLearningRate,
		"train_mesh_geometry":         boolValue(b.TrainMeshGeometry),
		"geometry_learning_rate":      b.GeometryLearningRate,
		"ms_ssim_loss_weight":         b.MSSSIMLossWeight,
		"reference_orbit_camera_fovy": b.FovY,
		"texture_resolution":          float64(b.TextureResolution),
	}
}

// Map returns the values as a generic map for hashing and storage.
func (b Bake) Map() map[string]any {
	return toAny(b.Values())
}

// BakeFromValues overlays values onto the defaults without validating.
func BakeFromValues(values map[string]float64) Bake {
	b := DefaultBake()
	for name, v := range values {
		switch name {
		case "training_iterations":
			b.TrainingIterations = int(v)
		case "batch_size":
			b.BatchSize = int(v)
		case "texture_learning_rate":
			b.TextureLearningRate = v
		case "train_mesh_geometry":
			b.TrainMeshGeometry = v != 0
		case "geometry_learning_rate":
			b.GeometryLearningRate = v
		case "ms_ssim_loss_weight":
			b.MSSSIMLossWeight = v
		case "reference_orbit_camera_fovy":
			b.FovY = v
		case "texture_resolution":
			b.TextureResolution = int(v)
		}
	}
	return b
}
