package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Classifier model filenames.
const (
	ClassifierMobileV2    = "ch_ppocr_mobile_v2.0_cls.onnx"
	ClassifierPPLCNetX025 = "pplcnet_x0_25_textline_ori.onnx"
	ClassifierPPLCNetX10  = "pplcnet_x1_0_textline_ori.onnx"
)

// TypeClassification is the models subdirectory holding orientation classifiers.
const TypeClassification = "classification"

// Default models directory.
const DefaultModelsDir = "models"

// Environment variable for models directory override.
const EnvModelsDir = "POGOCLS_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.New("could not find project root (go.mod not found)")
}

// ModelInfo contains metadata about a model.
type ModelInfo struct {
	Name        string
	Type        string
	Description string
	Filename    string
	// Input is the expected [C, H, W] of the model input.
	Input [3]int
}

// GetModelsDir returns the models directory path from various sources
// Priority: 1. Explicit modelsDir parameter, 2. Environment variable, 3. Project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}

	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}

	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}

	return DefaultModelsDir
}

// ResolveModelPath resolves a model filename to its full path. The organized
// layout (<dir>/<type>/<file>) wins when present, otherwise the flat layout
// (<dir>/<file>) is returned.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	baseDir := GetModelsDir(modelsDir)

	if modelType != "" {
		organizedPath := filepath.Join(baseDir, modelType, filename)
		if _, err := os.Stat(organizedPath); err == nil {
			return organizedPath
		}
	}

	return filepath.Join(baseDir, filename)
}

// GetClassifierModelPath returns the path for a text-line orientation classifier.
// An empty filename selects ClassifierMobileV2.
func GetClassifierModelPath(modelsDir, filename string) string {
	if filename == "" {
		filename = ClassifierMobileV2
	}
	return ResolveModelPath(modelsDir, TypeClassification, filename)
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// ListAvailableModels returns information about known classifier models.
func ListAvailableModels() []ModelInfo {
	return []ModelInfo{
		{
			Name:        "ppocr-mobile-v2-cls",
			Type:        TypeClassification,
			Description: "PP-OCR mobile v2.0 text direction classifier (0/180)",
			Filename:    ClassifierMobileV2,
			Input:       [3]int{3, 48, 192},
		},
		{
			Name:        "pplcnet-x0.25-textline",
			Type:        TypeClassification,
			Description: "PP-LCNet x0.25 text-line orientation classifier (0/180)",
			Filename:    ClassifierPPLCNetX025,
			Input:       [3]int{3, 80, 160},
		},
		{
			Name:        "pplcnet-x1.0-textline",
			Type:        TypeClassification,
			Description: "PP-LCNet x1.0 text-line orientation classifier (0/180)",
			Filename:    ClassifierPPLCNetX10,
			Input:       [3]int{3, 80, 160},
		},
	}
}

// FindModelInfo looks up a known model by its filename.
func FindModelInfo(filename string) (ModelInfo, bool) {
	base := filepath.Base(filename)
	for _, m := range ListAvailableModels() {
		if m.Filename == base {
			return m, true
		}
	}
	return ModelInfo{}, false
}
