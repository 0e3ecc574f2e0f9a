package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/pogocls/internal/models"
	"github.com/MeKo-Tech/pogocls/internal/onnx"
	"github.com/MeKo-Tech/pogocls/internal/orientation"
	"github.com/MeKo-Tech/pogocls/internal/utils"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	cls := orientation.DefaultConfig()
	return Config{
		ModelsDir: models.GetModelsDir(""),
		LogLevel:  "info",
		Verbose:   false,
		Classifier: ClassifierConfig{
			ModelPath:   "",
			Threshold:   cls.Threshold,
			BatchSize:   cls.BatchSize,
			ImageHeight: cls.Shape.Height,
			ImageWidth:  cls.Shape.Width,
			Channels:    cls.Shape.Channels,
			NumThreads:  0,
			Resampler:   utils.ResamplerImaging,
			Warmup:      false,
		},
		GPU: GPUConfig{
			Enabled:     true,
			Device:      0,
			MemoryLimit: "auto",
		},
		Output: OutputConfig{
			Format: "text",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			MaxImages:       64,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 10000,
				MaxImagesPerDay:   100000,
			},
		},
		Batch: BatchConfig{
			Recursive: false,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Output.Format != "" && !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := validateThreshold(c.Classifier.Threshold, "classifier.threshold"); err != nil {
		return err
	}
	if c.Classifier.BatchSize <= 0 {
		return fmt.Errorf("invalid classifier batch size: %d (must be positive)", c.Classifier.BatchSize)
	}
	if c.Classifier.ImageHeight <= 0 || c.Classifier.ImageWidth <= 0 {
		return fmt.Errorf("invalid classifier image size: %dx%d (must be positive)",
			c.Classifier.ImageWidth, c.Classifier.ImageHeight)
	}
	if c.Classifier.Channels != 1 && c.Classifier.Channels != 3 {
		return fmt.Errorf("invalid classifier channels: %d (must be 1 or 3)", c.Classifier.Channels)
	}
	if c.Classifier.NumThreads < 0 {
		return fmt.Errorf("invalid classifier num threads: %d (must not be negative)", c.Classifier.NumThreads)
	}
	if _, err := utils.ResamplerByName(c.Classifier.Resampler); err != nil {
		return fmt.Errorf("invalid classifier resampler: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.MaxImages <= 0 {
		return fmt.Errorf("invalid max images: %d (must be positive)", c.Server.MaxImages)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxImagesPerDay < 0 {
		return errors.New("invalid rate limit: limits must not be negative")
	}

	if c.GPU.Device < 0 {
		return fmt.Errorf("invalid GPU device: %d (must not be negative)", c.GPU.Device)
	}
	if _, err := onnx.ParseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}

	return nil
}

// ToClassifierConfig converts the config to the orientation classifier configuration.
func (c *Config) ToClassifierConfig() orientation.Config {
	cfg := orientation.DefaultConfig()
	cfg.ModelPath = models.GetClassifierModelPath(c.ModelsDir, "")
	if c.Classifier.ModelPath != "" {
		cfg.ModelPath = c.Classifier.ModelPath
	}
	cfg.Threshold = c.Classifier.Threshold
	cfg.BatchSize = c.Classifier.BatchSize
	cfg.Shape = orientation.ImageShape{
		Channels: c.Classifier.Channels,
		Height:   c.Classifier.ImageHeight,
		Width:    c.Classifier.ImageWidth,
	}
	cfg.NumThreads = c.Classifier.NumThreads
	cfg.Resampler = c.Classifier.Resampler
	cfg.Warmup = c.Classifier.Warmup

	cfg.GPU = onnx.DefaultGPUConfig()
	cfg.GPU.UseGPU = c.GPU.Enabled
	cfg.GPU.DeviceID = c.GPU.Device
	if limit, err := onnx.ParseMemoryLimit(c.GPU.MemoryLimit); err == nil {
		cfg.GPU.GPUMemLimit = limit
	}
	return cfg
}

// ToYAML renders the configuration as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a value is strictly between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value <= 0.0 || value >= 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0, exclusive)", name, value)
	}
	return nil
}
