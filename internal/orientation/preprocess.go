package orientation

import (
	"image"

	"github.com/MeKo-Tech/pogocls/internal/utils"
)

// resizedWidth is ceil(Height * w/h), the width a w x h image takes once
// scaled to the model height, capped at the model width. Integer arithmetic
// keeps exact ratios like 7/3 from rounding up a column.
func resizedWidth(w, h int, shape ImageShape) int {
	rw := (shape.Height*w + h - 1) / h
	if rw > shape.Width {
		rw = shape.Width
	}
	if rw < 1 {
		rw = 1
	}
	return rw
}

// normalizeInto letterboxes img into dst, which must hold shape.Size() floats
// and be zero-filled by the caller. The resized image occupies columns
// [0, resizedWidth) of every plane; the rest of dst is left untouched.
// Pixel values map to (p/255 - 0.5) / 0.5.
func normalizeInto(dst []float32, img image.Image, shape ImageShape, r utils.Resampler) error {
	b := img.Bounds()
	rw := resizedWidth(b.Dx(), b.Dy(), shape)
	resized, err := utils.ResizeImage(img, rw, shape.Height, r)
	if err != nil {
		return err
	}

	plane := shape.Height * shape.Width
	for y := range shape.Height {
		row := resized.Pix[y*resized.Stride:]
		for x := range rw {
			px := row[x*4 : x*4+3]
			idx := y*shape.Width + x
			if shape.Channels == 1 {
				lum := 0.299*float32(px[0]) + 0.587*float32(px[1]) + 0.114*float32(px[2])
				dst[idx] = scale(lum)
				continue
			}
			dst[idx] = scale(float32(px[0]))
			dst[plane+idx] = scale(float32(px[1]))
			dst[2*plane+idx] = scale(float32(px[2]))
		}
	}
	return nil
}

func scale(p float32) float32 {
	return (p/255 - 0.5) / 0.5
}

// normalizeImage returns a freshly allocated [C, H, W] tensor for img.
func normalizeImage(img image.Image, shape ImageShape, r utils.Resampler) ([]float32, error) {
	dst := make([]float32, shape.Size())
	if err := normalizeInto(dst, img, shape, r); err != nil {
		return nil, err
	}
	return dst, nil
}
