package orientation

import "github.com/MeKo-Tech/pogocls/internal/onnx"

// Backend runs the classification model on an [N, C, H, W] batch and returns
// an [N, K] score tensor with K >= 2. Implementations need not be safe for
// concurrent use; the Classifier serializes calls.
type Backend interface {
	Run(input onnx.Tensor) (onnx.Tensor, error)
	Close() error
}

var _ Backend = (*onnx.Session)(nil)
