// internal/inference/interface.go
package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotFound is returned when the model artifact is missing on disk.
	ErrModelNotFound = errors.New("model not found")
	// ErrSessionClosed is returned by Predict after Close.
	ErrSessionClosed = errors.New("inference session is nil")
	// ErrInputSize is returned when the input length does not match its shape.
	ErrInputSize = errors.New("input has wrong size")
	// ErrEmptyOutput is returned when the model produced no class scores.
	ErrEmptyOutput = errors.New("empty model output")
	// ErrInference wraps failures of the forward pass itself.
	ErrInference = errors.New("inference failed")
)

// Engine runs a classifier over one preprocessed image.
// This abstraction allows for easy mocking in tests and swapping implementations.
type Engine interface {
	// Predict runs a single image tensor with the given shape and returns
	// one score per class.
	Predict(input []float32, shape []int64) ([]float32, error)

	// NumClasses is the length of the score vector Predict returns.
	NumClasses() int

	// Close releases any resources held by the engine.
	Close() error
}

// Classify runs engine on input and returns the argmax class index.
func Classify(engine Engine, input []float32, shape []int64) (int, error) {
	scores, err := engine.Predict(input, shape)
	if err != nil {
		return -1, err
	}
	return Argmax(scores)
}

// checkInput verifies len(input) equals the product of shape.
func checkInput(input []float32, shape []int64) error {
	if len(shape) == 0 {
		return fmt.Errorf("%w: empty shape", ErrInputSize)
	}
	want := int64(1)
	for _, d := range shape {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive dimension in %v", ErrInputSize, shape)
		}
		want *= d
	}
	if int64(len(input)) != want {
		return fmt.Errorf("%w: got %d, expected %d", ErrInputSize, len(input), want)
	}
	return nil
}
