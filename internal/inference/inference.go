// internal/inference/inference.go
package inference

import (
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Options tune how an ONNX model is opened. Zero values are discovered from
// the model's own input/output metadata.
type Options struct {
	// SharedLibrary is the path to libonnxruntime; empty uses the default lookup.
	SharedLibrary string
	InputName     string
	OutputName    string
	// NumClasses overrides the class count when the model's output
	// dimension is dynamic.
	NumClasses int
}

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnvironment initializes the ONNX runtime on first use.
func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envRefs++
	return nil
}

// releaseEnvironment tears the runtime down when the last model is closed.
func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

// ONNX wraps an ONNX runtime session for thread-safe single-image
// classification. It implements the Engine interface.
type ONNX struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	numClasses int
}

// Load opens the ONNX model at modelPath.
func Load(modelPath string, opts Options) (*ONNX, error) {
	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return nil, fmt.Errorf("stat model %s: %w", modelPath, err)
	}

	if err := acquireEnvironment(opts.SharedLibrary); err != nil {
		return nil, err
	}

	inputName, outputName, numClasses, err := resolveIO(modelPath, opts)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		nil, // Use default session options
	)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNX{
		session:    session,
		inputName:  inputName,
		outputName: outputName,
		numClasses: numClasses,
	}, nil
}

// resolveIO fills in tensor names and the class count from model metadata
// wherever opts leaves them unset.
func resolveIO(modelPath string, opts Options) (string, string, int, error) {
	inputName, outputName, numClasses := opts.InputName, opts.OutputName, opts.NumClasses
	if inputName != "" && outputName != "" && numClasses > 0 {
		return inputName, outputName, numClasses, nil
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to read model metadata: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return "", "", 0, fmt.Errorf("model %s declares no inputs or outputs", modelPath)
	}

	if inputName == "" {
		inputName = inputs[0].Name
	}

	out := outputs[0]
	if outputName == "" {
		outputName = out.Name
	} else {
		for _, o := range outputs {
			if o.Name == outputName {
				out = o
				break
			}
		}
	}

	if numClasses <= 0 {
		if n := len(out.Dimensions); n > 0 && out.Dimensions[n-1] > 0 {
			numClasses = int(out.Dimensions[n-1])
		}
	}
	if numClasses <= 0 {
		return "", "", 0, fmt.Errorf("output %q has a dynamic class dimension; set the class count explicitly", outputName)
	}

	return inputName, outputName, numClasses, nil
}

// Predict runs one forward pass and returns the class scores.
func (m *ONNX) Predict(input []float32, shape []int64) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, ErrSessionClosed
	}
	if err := checkInput(input, shape); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(m.numClasses)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	err = m.session.Run(
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	// The tensor's backing memory is freed on Destroy.
	scores := make([]float32, m.numClasses)
	copy(scores, outputTensor.GetData())
	return scores, nil
}

// NumClasses reports the width of the model's output row.
func (m *ONNX) NumClasses() int {
	return m.numClasses
}

// Close releases the ONNX session resources
func (m *ONNX) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	if err != nil {
		releaseEnvironment()
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return releaseEnvironment()
}

// Ensure ONNX implements Engine at compile time
var _ Engine = (*ONNX)(nil)
