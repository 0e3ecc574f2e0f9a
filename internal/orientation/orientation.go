package orientation

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/common"
	"github.com/MeKo-Tech/pogocls/internal/models"
	"github.com/MeKo-Tech/pogocls/internal/onnx"
	"github.com/MeKo-Tech/pogocls/internal/utils"
)

// Result is the classification of one text line.
type Result struct {
	Label   string  // "0" or "180"
	Score   float64 // raw model output at Label's index
	Rotated bool    // the returned image was rotated by 180 degrees
}

// BatchResult is the output of Classify, aligned with its input.
type BatchResult struct {
	Images  []image.Image
	Results []Result
	Elapsed time.Duration // summed wall-clock time of backend calls
}

// Classifier predicts 0/180 degree orientation of cropped text lines and
// rotates upside-down lines. It is safe for concurrent use.
type Classifier struct {
	cfg       Config
	resampler utils.Resampler

	mu      sync.Mutex // serializes backend calls
	backend Backend
	closed  bool
}

// NewClassifier loads the ONNX model described by cfg. Failures wrap ErrModelInit.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelInit, err)
	}
	if err := models.ValidateModelExists(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelInit, err)
	}

	sess, err := onnx.NewSession(onnx.SessionConfig{
		ModelPath:  cfg.ModelPath,
		NumThreads: cfg.NumThreads,
		GPU:        cfg.GPU,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelInit, err)
	}

	if err := checkInputShape(sess.InputShape(), cfg.Shape); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("%w: %w", ErrModelInit, err)
	}
	slog.Info("orientation classifier loaded",
		"model", cfg.ModelPath, "device", sess.Device(), "input", sess.InputName())

	return newClassifier(cfg, sess)
}

// NewClassifierWithBackend builds a Classifier around an already opened
// backend. The Classifier takes ownership of backend.
func NewClassifierWithBackend(cfg Config, backend Backend) (*Classifier, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrModelInit)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelInit, err)
	}
	return newClassifier(cfg, backend)
}

func newClassifier(cfg Config, backend Backend) (*Classifier, error) {
	r, err := utils.ResamplerByName(cfg.Resampler)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("%w: %w", ErrModelInit, err)
	}
	c := &Classifier{cfg: cfg, resampler: r, backend: backend}

	if cfg.Warmup {
		if err := c.Warmup(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("%w: warmup: %w", ErrModelInit, err)
		}
	}
	return c, nil
}

// checkInputShape rejects models whose static dimensions contradict the
// configured shape. Dynamic axes (<= 0) are accepted.
func checkInputShape(dims []int64, shape ImageShape) error {
	if len(dims) != 4 {
		return fmt.Errorf("expected 4D model input, got %dD", len(dims))
	}
	want := []int{shape.Channels, shape.Height, shape.Width}
	names := []string{"channels", "height", "width"}
	for i, w := range want {
		if d := dims[i+1]; d > 0 && int(d) != w {
			return fmt.Errorf("model input %s is %d, configured %d", names[i], d, w)
		}
	}
	return nil
}

// Config returns the configuration the classifier was built with.
func (c *Classifier) Config() Config { return c.cfg }

// Warmup runs one inference on a blank input so the first real call does not
// pay for lazy runtime initialization.
func (c *Classifier) Warmup() error {
	blank := make([]float32, c.cfg.Shape.Size())
	input, err := onnx.NewBatchImageTensor([][]float32{blank}, c.cfg.Shape.Channels, c.cfg.Shape.Height, c.cfg.Shape.Width)
	if err != nil {
		return err
	}
	out, err := c.run(input, nil)
	if err != nil {
		return err
	}
	_, err = decodeOutput(out, 1)
	return err
}

// run executes one backend call under the classifier lock. When timer is
// set it measures the backend call only, not the wait for the lock.
func (c *Classifier) run(input onnx.Tensor, timer *common.Timer) (onnx.Tensor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return onnx.Tensor{}, errors.New("classifier is closed")
	}
	if timer == nil {
		return c.backend.Run(input)
	}
	var out onnx.Tensor
	err := timer.Time(func() error {
		var runErr error
		out, runErr = c.backend.Run(input)
		return runErr
	})
	return out, err
}

// Close releases the backend. Further Classify calls fail with ErrInference.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.backend.Close()
}
