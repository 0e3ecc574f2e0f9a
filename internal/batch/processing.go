package batch

import (
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/pogocls/internal/utils"
)

// loadImages decodes every file; the first failure aborts the run.
func loadImages(paths []string) ([]image.Image, error) {
	images := make([]image.Image, len(paths))
	for i, r := range utils.BatchLoadImages(paths) {
		if r.Err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", r.Path, r.Err)
		}
		images[i] = r.Img
	}
	return images, nil
}

// outputName maps an input path to a PNG file name, disambiguating inputs
// that share a base name.
func outputName(path string, seen map[string]int) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	n := seen[stem]
	seen[stem] = n + 1
	if n > 0 {
		stem += "_" + strconv.Itoa(n)
	}
	return stem + ".png"
}

// saveCorrectedImages writes images as PNG files into dir.
func saveCorrectedImages(dir string, paths []string, images []image.Image) ([]string, error) {
	seen := make(map[string]int, len(paths))
	saved := make([]string, 0, len(images))
	for i, img := range images {
		out := filepath.Join(dir, outputName(paths[i], seen))
		if err := utils.SaveImagePNG(out, img); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", out, err)
		}
		saved = append(saved, out)
	}
	return saved, nil
}
