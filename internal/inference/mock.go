// internal/inference/mock.go
package inference

import (
	"fmt"
	"sync"
)

// Mock is an Engine for tests. It returns fixed scores without requiring the
// ONNX shared library.
type Mock struct {
	mu sync.Mutex
	// Scores is the score vector returned for every input.
	Scores []float32
	// ShouldError if true, Predict will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times Predict was called
	CallCount int
}

// NewMock creates a Mock over 38 classes that always predicts class 3.
func NewMock() *Mock {
	scores := make([]float32, 38)
	for i := range scores {
		scores[i] = 0.01
	}
	scores[3] = 0.63
	return &Mock{Scores: scores}
}

// NewMockWithScores creates a Mock returning scores.
func NewMockWithScores(scores []float32) *Mock {
	return &Mock{Scores: scores}
}

// Predict validates the input and returns a copy of Scores.
func (m *Mock) Predict(input []float32, shape []int64) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++

	if m.ShouldError {
		if m.ErrorMessage != "" {
			return nil, fmt.Errorf("%w: %s", ErrInference, m.ErrorMessage)
		}
		return nil, fmt.Errorf("%w: mock inference error", ErrInference)
	}
	if err := checkInput(input, shape); err != nil {
		return nil, err
	}

	out := make([]float32, len(m.Scores))
	copy(out, m.Scores)
	return out, nil
}

// NumClasses returns len(Scores).
func (m *Mock) NumClasses() int {
	return len(m.Scores)
}

// Calls returns CallCount under the lock.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Close is a no-op for the mock implementation
func (m *Mock) Close() error {
	return nil
}

// SetError configures the mock to return an error on the next Predict call
func (m *Mock) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *Mock) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Ensure Mock implements Engine at compile time
var _ Engine = (*Mock)(nil)
