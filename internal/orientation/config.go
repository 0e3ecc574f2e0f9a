package orientation

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/MeKo-Tech/pogocls/internal/models"
	"github.com/MeKo-Tech/pogocls/internal/onnx"
	"github.com/MeKo-Tech/pogocls/internal/utils"
)

// ImageShape is the per-image model input [Channels, Height, Width].
type ImageShape struct {
	Channels int
	Height   int
	Width    int
}

// Size returns Channels*Height*Width.
func (s ImageShape) Size() int { return s.Channels * s.Height * s.Width }

// Config controls text-line orientation classification. It is copied into the
// Classifier at construction and never changes afterwards.
type Config struct {
	ModelPath  string
	Shape      ImageShape
	BatchSize  int
	Threshold  float64 // rotate only when the 180 score is strictly greater
	NumThreads int
	GPU        onnx.GPUConfig
	Resampler  string // "imaging" (default) or "nfnt"
	Warmup     bool   // run one dummy inference during construction
}

// DefaultConfig returns the standard mobile classifier settings.
func DefaultConfig() Config {
	return Config{
		ModelPath: models.GetClassifierModelPath("", models.ClassifierMobileV2),
		Shape:     ImageShape{Channels: 3, Height: 48, Width: 192},
		BatchSize: 6,
		Threshold: 0.9,
		GPU:       onnx.PreferGPUConfig(),
		Resampler: utils.ResamplerImaging,
	}
}

// UpdateModelPath relocates the current model filename under modelsDir.
func (c *Config) UpdateModelPath(modelsDir string) {
	filename := filepath.Base(c.ModelPath)
	if filename == "." || filename == "" || filename == string(filepath.Separator) {
		filename = models.ClassifierMobileV2
	}
	c.ModelPath = models.GetClassifierModelPath(modelsDir, filename)
}

// Validate checks the configuration for values the classifier cannot run with.
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold must be in (0, 1), got %v", c.Threshold)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Shape.Channels != 1 && c.Shape.Channels != 3 {
		return fmt.Errorf("channels must be 1 or 3, got %d", c.Shape.Channels)
	}
	if c.Shape.Height <= 0 || c.Shape.Width <= 0 {
		return fmt.Errorf("image shape must be positive, got %dx%d", c.Shape.Width, c.Shape.Height)
	}
	if c.NumThreads < 0 {
		return errors.New("num threads must not be negative")
	}
	if _, err := utils.ResamplerByName(c.Resampler); err != nil {
		return err
	}
	return onnx.ValidateGPUConfig(c.GPU)
}
