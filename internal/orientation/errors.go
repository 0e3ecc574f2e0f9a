package orientation

import "errors"

// Error classes reported by the classifier. Callers match them with errors.Is.
var (
	ErrModelInit    = errors.New("model initialization failed")
	ErrInference    = errors.New("inference failed")
	ErrInvalidImage = errors.New("invalid image")
)
