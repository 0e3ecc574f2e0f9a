package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotate180_PointReflection(t *testing.T) {
	w, h := 5, 3
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x + y*w), A: 255})
		}
	}

	rot := Rotate180(img)
	require.Equal(t, img.Bounds(), rot.Bounds())
	for y := range h {
		for x := range w {
			assert.Equal(t, img.NRGBAAt(x, y), rot.NRGBAAt(w-1-x, h-1-y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestRotate180_Twice(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(3, 1, color.NRGBA{B: 255, A: 255})

	assert.Equal(t, img.Pix, Rotate180(Rotate180(img)).Pix)
}

func TestAspectRatio(t *testing.T) {
	assert.InDelta(t, 4.0, AspectRatio(image.NewGray(image.Rect(0, 0, 40, 10))), 1e-9)
	assert.InDelta(t, 0.5, AspectRatio(image.NewGray(image.Rect(10, 10, 15, 20))), 1e-9)
	assert.Zero(t, AspectRatio(image.NewGray(image.Rect(0, 0, 10, 0))))
}
