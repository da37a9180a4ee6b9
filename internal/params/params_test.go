package params

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbitsplat/internal/ir"
)

func TestDefaultTraining_MatchesFieldTable(t *testing.T) {
	values := DefaultTraining().Values()
	require.Len(t, values, len(TrainingFields))
	for _, f := range TrainingFields {
		assert.Equal(t, f.Default, values[f.Name], f.Name)
	}

	_, err := NewTraining(DefaultTraining())
	require.NoError(t, err)
}

func TestDefaultBake_MatchesFieldTable(t *testing.T) {
	values := DefaultBake().Values()
	require.Len(t, values, len(BakeFields))
	for _, f := range BakeFields {
		assert.Equal(t, f.Default, values[f.Name], f.Name)
	}

	_, err := NewBake(DefaultBake())
	require.NoError(t, err)
}

func TestNewTraining_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Training)
		field  string
	}{
		{"negative iterations", func(p *Training) { p.TrainingIterations = -1 }, "training_iterations"},
		{"too many iterations", func(p *Training) { p.TrainingIterations = 100001 }, "training_iterations"},
		{"zero batch", func(p *Training) { p.BatchSize = 0 }, "batch_size"},
		{"probability above one", func(p *Training) { p.InvertBackgroundProbability = 1.5 }, "invert_background_probability"},
		{"negative learning rate", func(p *Training) { p.FeatureLearningRate = -0.1 }, "feature_learning_rate"},
		{"too many neighbours", func(p *Training) { p.KNearestNeighbors = 65 }, "K_nearest_neighbors"},
		{"sh degree four", func(p *Training) { p.GaussianSHDegree = 4 }, "gaussian_sh_degree"},
		{"fovy above 180", func(p *Training) { p.FovY = 181 }, "reference_orbit_camera_fovy"},
		{"nan weight", func(p *Training) { p.AlphaLossWeight = math.NaN() }, "alpha_loss_weight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultTraining()
			tt.mutate(&p)
			_, err := NewTraining(p)
			require.Error(t, err)
			assert.True(t, ir.IsUserInputError(err))
			assert.Equal(t, ir.ErrCodeOutOfRange, ir.CodeOf(err))
			assert.Contains(t, err.Error(), "field="+tt.field)
		})
	}
}

func TestNewTraining_NoCrossFieldValidation(t *testing.T) {
	p := DefaultTraining()
	p.DensityStartIterations = 5000
	p.DensityEndIterations = 10
	p.PositionLearningRateFinal = 1
	p.PositionLearningRateInit = 0

	got, err := NewTraining(p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestNewTraining_ZeroIterationsAllowed(t *testing.T) {
	p := DefaultTraining()
	p.TrainingIterations = 0
	_, err := NewTraining(p)
	assert.NoError(t, err)
}

func TestNewBake_Bounds(t *testing.T) {
	b := DefaultBake()
	b.GeometryLearningRate = 0.2
	_, err := NewBake(b)
	assert.Equal(t, ir.ErrCodeOutOfRange, ir.CodeOf(err))

	b = DefaultBake()
	b.TextureResolution = 4
	_, err = NewBake(b)
	assert.Error(t, err)

	b = DefaultBake()
	b.TrainMeshGeometry = true
	_, err = NewBake(b)
	assert.NoError(t, err)
}

func TestField_Check(t *testing.T) {
	k, ok := Lookup(TrainingFields, "K_nearest_neighbors")
	require.True(t, ok)
	assert.NoError(t, k.Check(1))
	assert.NoError(t, k.Check(64))
	assert.ErrorContains(t, k.Check(2.5), "integer")
	assert.ErrorContains(t, k.Check(0), ">= 1")

	geo, ok := Lookup(BakeFields, "train_mesh_geometry")
	require.True(t, ok)
	assert.NoError(t, geo.Check(1))
	assert.ErrorContains(t, geo.Check(0.5), "boolean")

	_, ok = Lookup(TrainingFields, "no_such_field")
	assert.False(t, ok)
}

func TestTrainingFromValues_IgnoresUnknown(t *testing.T) {
	p := TrainingFromValues(map[string]float64{
		"training_iterations": 42,
		"percent_dense":       0.5,
		"bogus":               1,
	})
	assert.Equal(t, 42, p.TrainingIterations)
	assert.Equal(t, 0.5, p.PercentDense)
	assert.Equal(t, DefaultTraining().BatchSize, p.BatchSize)
}

func TestSchema_Constraints(t *testing.T) {
	s := Schema()
	assert.Contains(t, s, "#Training: {")
	assert.Contains(t, s, "#Bake: {")
	assert.Contains(t, s, "\tK_nearest_neighbors?: int & >=1 & <=64\n")
	assert.Contains(t, s, "\tbatch_size?: int & >=1\n")
	assert.Contains(t, s, "\tinvert_background_probability?: number & >=0 & <=1\n")
	assert.Contains(t, s, "\ttrain_mesh_geometry?: bool\n")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTraining_YAML(t *testing.T) {
	path := writeFile(t, "train.yaml", "training_iterations: 50\nK_nearest_neighbors: 8\nms_ssim_loss_weight: 0.5\n")
	p, err := LoadTraining(path)
	require.NoError(t, err)
	assert.Equal(t, 50, p.TrainingIterations)
	assert.Equal(t, 8, p.KNearestNeighbors)
	assert.Equal(t, 0.5, p.MSSSIMLossWeight)
	assert.Equal(t, DefaultTraining().InitialGaussiansNum, p.InitialGaussiansNum)
}

func TestLoadTraining_YAMLEmpty(t *testing.T) {
	p, err := LoadTraining(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultTraining(), p)
}

func TestLoadTraining_YAMLUnknownField(t *testing.T) {
	_, err := LoadTraining(writeFile(t, "train.yaml", "training_iteration: 50\n"))
	require.Error(t, err)
	assert.True(t, ir.IsUserInputError(err))
}

func TestLoadTraining_YAMLOutOfRange(t *testing.T) {
	_, err := LoadTraining(writeFile(t, "train.yaml", "gaussian_sh_degree: 7\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field=gaussian_sh_degree")
}

func TestLoadTraining_CUE(t *testing.T) {
	path := writeFile(t, "train.cue", "training_iterations: 10\nloss_value_scale: 5000\npercent_dense: 0.02\n")
	p, err := LoadTraining(path)
	require.NoError(t, err)
	assert.Equal(t, 10, p.TrainingIterations)
	assert.Equal(t, 5000.0, p.LossValueScale)
	assert.Equal(t, 0.02, p.PercentDense)
	assert.Equal(t, DefaultTraining().BatchSize, p.BatchSize)
}

func TestLoadTraining_CUEViolatesSchema(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"above max", "K_nearest_neighbors: 100\n"},
		{"float for int", "batch_size: 2.5\n"},
		{"unknown field", "batch: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTraining(writeFile(t, "train.cue", tt.content))
			require.Error(t, err)
			assert.True(t, ir.IsUserInputError(err))
		})
	}
}

func TestLoadBake_CUE(t *testing.T) {
	path := writeFile(t, "bake.cue", "train_mesh_geometry: true\ntexture_resolution: 256\n")
	b, err := LoadBake(path)
	require.NoError(t, err)
	assert.True(t, b.TrainMeshGeometry)
	assert.Equal(t, 256, b.TextureResolution)
}

func TestLoad_Errors(t *testing.T) {
	_, err := LoadTraining(writeFile(t, "train.json", "{}"))
	assert.Equal(t, ir.ErrCodeUnsupportedExtension, ir.CodeOf(err))

	_, err = LoadBake(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, ir.ErrCodeFileNotFound, ir.CodeOf(err))
}
