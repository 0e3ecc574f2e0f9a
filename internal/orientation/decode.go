package orientation

import (
	"fmt"

	"github.com/MeKo-Tech/pogocls/internal/onnx"
)

// Labels indexed by model output class.
const (
	LabelUpright = "0"
	LabelFlipped = "180"
)

var labels = [2]string{LabelUpright, LabelFlipped}

// decodeOutput turns an [n, K] score tensor into per-image results. Only the
// first two classes are considered; the first maximum wins on ties.
func decodeOutput(out onnx.Tensor, n int) ([]Result, error) {
	if len(out.Shape) != 2 || out.Shape[0] != int64(n) || out.Shape[1] < 2 {
		return nil, fmt.Errorf("%w: unexpected output shape %v for batch of %d", ErrInference, out.Shape, n)
	}
	results := make([]Result, n)
	for i := range n {
		row, err := out.Row(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInference, err)
		}
		idx := argmax(row[:2])
		results[i] = Result{Label: labels[idx], Score: float64(row[idx])}
	}
	return results, nil
}

func argmax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	maxIdx := 0
	maxVal := values[0]
	for i, v := range values[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = i + 1
		}
	}
	return maxIdx
}
