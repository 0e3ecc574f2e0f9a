package onnx

import (
	"errors"
	"fmt"
)

// Tensor represents a simple float32 tensor passed to or returned from a model.
// Data layout is row-major, with NCHW for images.
type Tensor struct {
	Data  []float32
	Shape []int64 // e.g., [N, C, H, W] or [N, K]
}

// NumElements returns the product of the shape dimensions.
func NumElements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// NewBatchImageTensor stacks per-image [C, H, W] buffers into [N, C, H, W].
func NewBatchImageTensor(images [][]float32, c, h, w int) (Tensor, error) {
	if len(images) == 0 {
		return Tensor{}, errors.New("empty batch")
	}
	per := c * h * w
	out := make([]float32, per*len(images))
	for i, d := range images {
		if len(d) != per {
			return Tensor{}, fmt.Errorf("image %d has length %d, want %d", i, len(d), per)
		}
		copy(out[i*per:(i+1)*per], d)
	}
	shape := []int64{int64(len(images)), int64(c), int64(h), int64(w)}
	return Tensor{Data: out, Shape: shape}, nil
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// VerifyImageTensor checks data length matches the provided NCHW shape.
func VerifyImageTensor(t Tensor) error {
	if err := ValidateNCHW(t.Shape); err != nil {
		return err
	}
	if expected := NumElements(t.Shape); len(t.Data) != expected {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), expected, t.Shape)
	}
	return nil
}

// Row returns row i of a rank-2 tensor [N, K] without copying.
func (t Tensor) Row(i int) ([]float32, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("expected rank-2 tensor, got shape %v", t.Shape)
	}
	n, k := int(t.Shape[0]), int(t.Shape[1])
	if i < 0 || i >= n {
		return nil, fmt.Errorf("row %d out of range [0,%d)", i, n)
	}
	if len(t.Data) < n*k {
		return nil, fmt.Errorf("tensor data length %d too short for shape %v", len(t.Data), t.Shape)
	}
	return t.Data[i*k : (i+1)*k], nil
}

// TensorStats computes min, max and mean for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
