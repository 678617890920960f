package inference

import "math"

// Argmax returns the index of the highest score. Ties resolve to the lowest
// index and NaN scores are never selected unless every score is NaN.
func Argmax(scores []float32) (int, error) {
	if len(scores) == 0 {
		return -1, ErrEmptyOutput
	}

	best := -1
	for i, v := range scores {
		if math.IsNaN(float64(v)) {
			continue
		}
		if best < 0 || v > scores[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, nil
	}
	return best, nil
}
