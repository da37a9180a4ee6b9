package params

// Training configures one Gaussian Splatting optimization run.
//
// A Training value is validated field by field when built with NewTraining
// and is passed by value afterwards, so a run never observes later edits.
// Cross-field consistency (e.g. density_start_iterations <
// density_end_iterations) is not checked.
//
// The position learning rate decays log-linearly from
// position_learning_rate_init to position_learning_rate_final over
// position_learning_rate_max_steps. position_learning_rate_delay_mult scales
// a warmup whose length is zero steps, as in the 3DGS reference defaults, so
// it is accepted and validated but does not change the schedule.
type Training struct {
	TrainingIterations          int     `json:"training_iterations" yaml:"training_iterations"`
	BatchSize                   int     `json:"batch_size" yaml:"batch_size"`
	LossValueScale              float64 `json:"loss_value_scale" yaml:"loss_value_scale"`
	MSSSIMLossWeight            float64 `json:"ms_ssim_loss_weight" yaml:"ms_ssim_loss_weight"`
	AlphaLossWeight             float64 `json:"alpha_loss_weight" yaml:"alpha_loss_weight"`
	OffsetLossWeight            float64 `json:"offset_loss_weight" yaml:"offset_loss_weight"`
	OffsetOpacityLossWeight     float64 `json:"offset_opacity_loss_weight" yaml:"offset_opacity_loss_weight"`
	InvertBackgroundProbability float64 `json:"invert_background_probability" yaml:"invert_background_probability"`
	FeatureLearningRate         float64 `json:"feature_learning_rate" yaml:"feature_learning_rate"`
	OpacityLearningRate         float64 `json:"opacity_learning_rate" yaml:"opacity_learning_rate"`
	ScalingLearningRate         float64 `json:"scaling_learning_rate" yaml:"scaling_learning_rate"`
	RotationLearningRate        float64 `json:"rotation_learning_rate" yaml:"rotation_learning_rate"`
	PositionLearningRateInit    float64 `json:"position_learning_rate_init" yaml:"position_learning_rate_init"`
	PositionLearningRateFinal   float64 `json:"position_learning_rate_final" yaml:"position_learning_rate_final"`
	PositionLearningRateDelay   float64 `json:"position_learning_rate_delay_mult" yaml:"position_learning_rate_delay_mult"`
	PositionLearningRateSteps   int     `json:"position_learning_rate_max_steps" yaml:"position_learning_rate_max_steps"`
	InitialGaussiansNum         int     `json:"initial_gaussians_num" yaml:"initial_gaussians_num"`
	KNearestNeighbors           int     `json:"K_nearest_neighbors" yaml:"K_nearest_neighbors"`
	PercentDense                float64 `json:"percent_dense" yaml:"percent_dense"`
	DensityStartIterations      int     `json:"density_start_iterations" yaml:"density_start_iterations"`
	DensityEndIterations        int     `json:"density_end_iterations" yaml:"density_end_iterations"`
	DensificationInterval       int     `json:"densification_interval" yaml:"densification_interval"`
	OpacityResetInterval        int     `json:"opacity_reset_interval" yaml:"opacity_reset_interval"`
	DensifyGradThreshold        float64 `json:"densify_grad_threshold" yaml:"densify_grad_threshold"`
	GaussianSHDegree            int     `json:"gaussian_sh_degree" yaml:"gaussian_sh_degree"`
	FovY                        float64 `json:"reference_orbit_camera_fovy" yaml:"reference_orbit_camera_fovy"`
}

// TrainingFields lists every Training option with its default and bounds.
var TrainingFields = []Field{
	{Name: "training_iterations", Kind: KindInt, Default: 1000, Min: 0, Max: 100000, Step: 1},
	{Name: "batch_size", Kind: KindInt, Default: 5, Min: 1, Max: Unbounded, Step: 1},
	{Name: "loss_value_scale", Kind: KindFloat, Default: 10000, Min: 0, Max: Unbounded},
	{Name: "ms_ssim_loss_weight", Kind: KindFloat, Default: 0.2, Min: 0, Max: Unbounded},
	{Name: "alpha_loss_weight", Kind: KindFloat, Default: 3, Min: 0, Max: Unbounded},
	{Name: "offset_loss_weight", Kind: KindFloat, Default: 0, Min: 0, Max: Unbounded},
	{Name: "offset_opacity_loss_weight", Kind: KindFloat, Default: 0, Min: 0, Max: Unbounded},
	{Name: "invert_background_probability", Kind: KindFloat, Default: 0.5, Min: 0, Max: 1, Step: 0.1},
	{Name: "feature_learning_rate", Kind: KindFloat, Default: 0.01, Min: 0, Max: Unbounded},
	{Name: "opacity_learning_rate", Kind: KindFloat, Default: 0.05, Min: 0, Max: Unbounded},
	{Name: "scaling_learning_rate", Kind: KindFloat, Default: 0.005, Min: 0, Max: Unbounded},
	{Name: "rotation_learning_rate", Kind: KindFloat, Default: 0.005, Min: 0, Max: Unbounded},
	{Name: "position_learning_rate_init", Kind: KindFloat, Default: 0.001, Min: 0, Max: Unbounded},
	{Name: "position_learning_rate_final", Kind: KindFloat, Default: 0.00002, Min: 0, Max: Unbounded},
	{Name: "position_learning_rate_delay_mult", Kind: KindFloat, Default: 0.02, Min: 0, Max: 1},
	{Name: "position_learning_rate_max_steps", Kind: KindInt, Default: 500, Min: 1, Max: Unbounded, Step: 1},
	{Name: "initial_gaussians_num", Kind: KindInt, Default: 5000, Min: 1, Max: Unbounded, Step: 1},
	{Name: "K_nearest_neighbors", Kind: KindInt, Default: 3, Min: 1, Max: 64, Step: 1},
	{Name: "percent_dense", Kind: KindFloat, Default: 0.01, Min: 0, Max: 1},
	{Name: "density_start_iterations", Kind: KindInt, Default: 100, Min: 0, Max: Unbounded, Step: 1},
	{Name: "density_end_iterations", Kind: KindInt, Default: 100000, Min: 0, Max: Unbounded, Step: 1},
	{Name: "densification_interval", Kind: KindInt, Default: 100, Min: 1, Max: Unbounded, Step: 1},
	{Name: "opacity_reset_interval", Kind: KindInt, Default: 700, Min: 1, Max: Unbounded, Step: 1},
	{Name: "densify_grad_threshold", Kind: KindFloat, Default: 0.01, Min: 0, Max: Unbounded},
	{Name: "gaussian_sh_degree", Kind: KindInt, Default: 0, Min: 0, Max: 3, Step: 1},
	{Name: "reference_orbit_camera_fovy", Kind: KindFloat, Default: 49.1, Min: 0, Max: 180, Step: 0.1},
}

// DefaultTraining returns the default parameter set.
func DefaultTraining() Training {
	return Training{
		TrainingIterations:          1000,
		BatchSize:                   5,
		LossValueScale:              10000,
		MSSSIMLossWeight:            0.2,
		AlphaLossWeight:             3,
		OffsetLossWeight:            0,
		OffsetOpacityLossWeight:     0,
		InvertBackgroundProbability: 0.5,
		FeatureLearningRate:         0.01,
		OpacityLearningRate:         0.05,
		ScalingLearningRate:         0.005,
		RotationLearningRate:        0.005,
		PositionLearningRateInit:    0.001,
		PositionLearningRateFinal:   0.00002,
		PositionLearningRateDelay:   0.02,
		PositionLearningRateSteps:   500,
		InitialGaussiansNum:         5000,
		KNearestNeighbors:           3,
		PercentDense:                0.01,
		DensityStartIterations:      100,
		DensityEndIterations:        100000,
		DensificationInterval:       100,
		OpacityResetInterval:        700,
		DensifyGradThreshold:        0.01,
		GaussianSHDegree:            0,
		FovY:                        49.1,
	}
}

// NewTraining validates t and returns it. The returned value is a copy.
func NewTraining(t Training) (Training, error) {
	if err := validate(TrainingFields, t.Values()); err != nil {
		return Training{}, err
	}
	return t, nil
}

// Values returns every field keyed by its option name.
func (t Training) Values() map[string]float64 {
	return map[string]float64{
		"training_iterations":               float64(t.TrainingIterations),
		"batch_size":                        float64(t.BatchSize),
		"loss_value_scale":                  t.LossValueScale,
		"ms_ssim_loss_weight":               t.MSSSIMLossWeight,
		"alpha_loss_weight":                 t.AlphaLossWeight,
		"offset_loss_weight":                t.OffsetLossWeight,
		"offset_opacity_loss_weight":        t.OffsetOpacityLossWeight,
		"invert_background_probability":     t.InvertBackgroundProbability,
		"feature_learning_rate":             t.FeatureLearningRate,
		"opacity_learning_rate":             t.OpacityLearningRate,
		"scaling_learning_rate":             t.ScalingLearningRate,
		"rotation_learning_rate":            t.RotationLearningRate,
		"position_learning_rate_init":       t.PositionLearningRateInit,
		"position_learning_rate_final":      t.PositionLearningRateFinal,
		"position_learning_rate_delay_mult": t.PositionLearningRateDelay,
		"position_learning_rate_max_steps":  float64(t.PositionLearningRateSteps),
		"initial_gaussians_num":             float64(t.InitialGaussiansNum),
		"K_nearest_neighbors":               float64(t.KNearestNeighbors),
		"percent_dense":                     t.PercentDense,
		"density_start_iterations":          float64(t.DensityStartIterations),
		"density_end_iterations":            float64(t.DensityEndIterations),
		"densification_interval":            float64(t.DensificationInterval),
		"opacity_reset_interval":            float64(t.OpacityResetInterval),
		"densify_grad_threshold":            t.DensifyGradThreshold,
		"gaussian_sh_degree":                float64(t.GaussianSHDegree),
		"reference_orbit_camera_fovy":       t.FovY,
	}
}

// Map returns the values as a generic map for hashing and storage.
func (t Training) Map() map[string]any {
	return toAny(t.Values())
}

// FromValues overlays values onto the defaults. Unknown names are ignored;
// the result is not validated.
func TrainingFromValues(values map[string]float64) Training {
	t := DefaultTraining()
	setters := map[string]func(float64){
		"training_iterations":               func(v float64) { t.TrainingIterations = int(v) },
		"batch_size":                        func(v float64) { t.BatchSize = int(v) },
		"loss_value_scale":                  func(v float64) { t.LossValueScale = v },
		"ms_ssim_loss_weight":               func(v float64) { t.MSSSIMLossWeight = v },
		"alpha_loss_weight":                 func(v float64) { t.AlphaLossWeight = v },
		"offset_loss_weight":                func(v float64) { t.OffsetLossWeight = v },
		"offset_opacity_loss_weight":        func(v float64) { t.OffsetOpacityLossWeight = v },
		"invert_background_probability":     func(v float64) { t.InvertBackgroundProbability = v },
		"feature_learning_rate":             func(v float64) { t.FeatureLearningRate = v },
		"opacity_learning_rate":             func(v float64) { t.OpacityLearningRate = v },
		"scaling_learning_rate":             func(v float64) { t.ScalingLearningRate = v },
		"rotation_learning_rate":            func(v float64) { t.RotationLearningRate = v },
		"position_learning_rate_init":       func(v float64) { t.PositionLearningRateInit = v },
		"position_learning_rate_final":      func(v float64) { t.PositionLearningRateFinal = v },
		"position_learning_rate_delay_mult": func(v float64) { t.PositionLearningRateDelay = v },
		"position_learning_rate_max_steps":  func(v float64) { t.PositionLearningRateSteps = int(v) },
		"initial_gaussians_num":             func(v float64) { t.InitialGaussiansNum = int(v) },
		"K_nearest_neighbors":               func(v float64) { t.KNearestNeighbors = int(v) },
		"percent_dense":                     func(v float64) { t.PercentDense = v },
		"density_start_iterations":          func(v float64) { t.DensityStartIterations = int(v) },
		"density_end_iterations":            func(v float64) { t.DensityEndIterations = int(v) },
		"densification_interval":            func(v float64) { t.DensificationInterval = int(v) },
		"opacity_reset_interval":            func(v float64) { t.OpacityResetInterval = int(v) },
		"densify_grad_threshold":            func(v float64) { t.DensifyGradThreshold = v },
		"gaussian_sh_degree":                func(v float64) { t.GaussianSHDegree = int(v) },
		"reference_orbit_camera_fovy":       func(v float64) { t.FovY = v },
	}
	for name, v := range values {
		if set, ok := setters[name]; ok {
			set(v)
		}
	}
	return t
}

func toAny(values map[string]float64) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
