package utils

import (
	"image"

	"github.com/disintegration/imaging"
)

// Rotate180 rotates an image by 180 degrees (point reflection through the center).
func Rotate180(img image.Image) *image.NRGBA { return imaging.Rotate180(img) }

// AspectRatio returns width/height of img, or 0 for an empty image.
func AspectRatio(img image.Image) float64 {
	b := img.Bounds()
	if b.Dy() == 0 {
		return 0
	}
	return float64(b.Dx()) / float64(b.Dy())
}
