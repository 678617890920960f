package detector

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/leafscan/internal/inference"
)

// stubLoader swaps loadEngine for one returning engine and records the
// model paths it was asked for.
func stubLoader(t *testing.T, engine inference.Engine) *[]string {
	t.Helper()
	var paths []string
	prev := loadEngine
	loadEngine = func(modelPath string, _ inference.Options) (inference.Engine, error) {
		paths = append(paths, modelPath)
		return engine, nil
	}
	t.Cleanup(func() { loadEngine = prev })
	return &paths
}

func TestDetect_UsesDefaultModelPath(t *testing.T) {
	mock := inference.NewMock()
	paths := stubLoader(t, mock)

	idx, err := Detect(writeFile(t, "leaf.png", leafPNG(t, 1)))
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
	assert.Equal(t, []string{DefaultModelPath}, *paths)
}

func TestDetectWithModel_ReloadsEveryCall(t *testing.T) {
	mock := inference.NewMockWithScores([]float32{0.3, 0.2, 0.5})
	paths := stubLoader(t, mock)
	image := writeFile(t, "leaf.png", leafPNG(t, 120))

	first, err := DetectWithModel("a.onnx", image)
	require.NoError(t, err)
	second, err := DetectWithModel("a.onnx", image)
	require.NoError(t, err)

	assert.Equal(t, 2, first)
	assert.Equal(t, first, second)
	assert.Len(t, *paths, 2)
}

func TestDetectWithModel_MissingImage(t *testing.T) {
	stubLoader(t, inference.NewMock())

	idx, err := DetectWithModel("a.onnx", filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
	assert.Equal(t, -1, idx)
}

func TestDetectWithModel_MissingModel(t *testing.T) {
	idx, err := DetectWithModel(filepath.Join(t.TempDir(), "missing.onnx"), writeFile(t, "leaf.png", leafPNG(t, 1)))
	require.Error(t, err)
	assert.ErrorIs(t, err, inference.ErrModelNotFound)
	assert.Equal(t, -1, idx)
}

func TestDetectWithModel_PredictError(t *testing.T) {
	mock := inference.NewMock()
	mock.SetError("bad weights")
	stubLoader(t, mock)

	_, err := DetectWithModel("a.onnx", writeFile(t, "leaf.png", leafPNG(t, 1)))
	assert.ErrorIs(t, err, inference.ErrInference)
}
