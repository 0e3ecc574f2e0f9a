// Package batch classifies text-line images read from disk.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/orientation"
)

// Classifier is the subset of orientation.Classifier used by batch runs.
type Classifier interface {
	Classify(ctx context.Context, images []image.Image) (*orientation.BatchResult, error)
}

// ProcessBatch discovers images under paths, classifies them with a new
// ONNX-backed classifier and saves corrected images when configured.
func ProcessBatch(ctx context.Context, paths []string, config *Config) (*Result, error) {
	files, err := DiscoverImageFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}

	cls, err := orientation.NewClassifier(config.Classifier)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cls.Close(); err != nil {
			slog.Warn("error closing classifier", "error", err)
		}
	}()

	return ClassifyFiles(ctx, cls, files, config.SaveDir)
}

// ClassifyFiles loads files, classifies them in one call and writes the
// corrected images to saveDir when it is not empty.
func ClassifyFiles(ctx context.Context, cls Classifier, files []string, saveDir string) (*Result, error) {
	start := time.Now()

	images, err := loadImages(files)
	if err != nil {
		return nil, err
	}

	out, err := cls.Classify(ctx, images)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	res := &Result{ImagePaths: files, Output: out}
	if saveDir != "" {
		saved, err := saveCorrectedImages(saveDir, files, out.Images)
		if err != nil {
			return nil, err
		}
		res.SavedPaths = saved
	}
	res.Duration = time.Since(start)

	slog.Debug("batch classified", "images", len(files), "rotated", res.Rotated(), "duration", res.Duration)
	return res, nil
}
