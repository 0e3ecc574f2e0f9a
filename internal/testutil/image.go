package testutil

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextLineConfig holds configuration for generating a single cropped text line.
type TextLineConfig struct {
	Text       string
	Height     int // total image height; text is vertically centered
	Padding    int // horizontal padding on each side
	Background color.Color
	Foreground color.Color
	FontFace   font.Face
	Flipped    bool // rotate the rendered line by 180 degrees
}

// DefaultTextLineConfig returns a black-on-white line sized like a detector crop.
func DefaultTextLineConfig() TextLineConfig {
	return TextLineConfig{
		Text:       "Sample Text",
		Height:     32,
		Padding:    6,
		Background: color.White,
		Foreground: color.Black,
		FontFace:   basicfont.Face7x13,
	}
}

// GenerateTextLine renders config.Text into an image whose width fits the text.
func GenerateTextLine(config TextLineConfig) (*image.NRGBA, error) {
	if config.Text == "" {
		return nil, errors.New("empty text")
	}
	face := config.FontFace
	if face == nil {
		face = basicfont.Face7x13
	}
	height := config.Height
	metrics := face.Metrics()
	textH := (metrics.Ascent + metrics.Descent).Ceil()
	if height < textH {
		height = textH
	}

	textW := font.MeasureString(face, config.Text).Ceil()
	width := textW + 2*config.Padding
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{config.Background}, image.Point{}, draw.Src)

	baseline := (height-textH)/2 + metrics.Ascent.Ceil()
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{config.Foreground},
		Face: face,
		Dot:  fixed.P(config.Padding, baseline),
	}
	drawer.DrawString(config.Text)

	if config.Flipped {
		return imaging.Rotate180(img), nil
	}
	return img, nil
}

// IDImage returns a uniform w x h image encoding id in its red channel. The
// id survives resizing and 180 degree rotation, which makes it useful for
// tracking images through reordering.
func IDImage(id uint8, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	c := color.NRGBA{R: id, G: 255 - id, B: 128, A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// ReadID returns the id encoded by IDImage.
func ReadID(img image.Image) uint8 {
	b := img.Bounds()
	r, _, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	return uint8(r >> 8) //nolint:gosec // 16-bit channel narrowed back to 8 bits
}

// GradientImage returns an image whose pixels are all distinct within the
// first 256x256 block, so any geometric transform is detectable.
func GradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255}) //nolint:gosec // wraps intentionally
		}
	}
	return img
}

// CreateTestImage returns a solid image of the given size.
func CreateTestImage(width, height int, backgroundColor color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// SaveImage saves an image to the specified path as PNG.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)

	file, err := os.Create(path) //nolint:gosec // G304: Test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()

	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	file, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")

	return img
}

// EqualPixels reports whether two images have identical bounds and pixels.
func EqualPixels(a, b image.Image) bool {
	if a.Bounds().Size() != b.Bounds().Size() {
		return false
	}
	ab, bb := a.Bounds(), b.Bounds()
	for y := range ab.Dy() {
		for x := range ab.Dx() {
			r1, g1, b1, a1 := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			r2, g2, b2, a2 := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				return false
			}
		}
	}
	return true
}
