package detector

import (
	"fmt"

	"github.com/SyedDaiam9101/leafscan/internal/imageprep"
	"github.com/SyedDaiam9101/leafscan/internal/inference"
)

// DefaultModelPath is where Detect expects the exported plant disease model.
const DefaultModelPath = "models/plant_disease.onnx"

// loadEngine is replaced in tests to avoid the ONNX shared library.
var loadEngine = func(modelPath string, opts inference.Options) (inference.Engine, error) {
	return inference.Load(modelPath, opts)
}

// Detect loads the model at DefaultModelPath, classifies the image at
// imagePath and returns the most probable class index. The model is loaded
// and released on every call.
func Detect(imagePath string) (int, error) {
	return DetectWithModel(DefaultModelPath, imagePath)
}

// DetectWithModel is Detect with an explicit model path.
func DetectWithModel(modelPath, imagePath string) (int, error) {
	return DetectWithOptions(modelPath, imagePath, inference.Options{}, imageprep.Default())
}

// DetectWithOptions is DetectWithModel with explicit engine and
// preprocessing settings.
func DetectWithOptions(modelPath, imagePath string, opts inference.Options, prep imageprep.Preprocessor) (int, error) {
	engine, err := loadEngine(modelPath, opts)
	if err != nil {
		return -1, fmt.Errorf("load model: %w", err)
	}
	defer engine.Close()

	input, err := prep.LoadTensor(imagePath)
	if err != nil {
		return -1, fmt.Errorf("load image: %w", err)
	}

	idx, err := inference.Classify(engine, input, prep.Shape())
	if err != nil {
		return -1, fmt.Errorf("predict: %w", err)
	}
	return idx, nil
}
