package orientation

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"

	"github.com/MeKo-Tech/pogocls/internal/common"
	"github.com/MeKo-Tech/pogocls/internal/mempool"
	"github.com/MeKo-Tech/pogocls/internal/onnx"
	"github.com/MeKo-Tech/pogocls/internal/utils"
)

// Classify predicts the orientation of every image, rotates those labeled
// "180" with a score above the threshold and returns images and results in
// input order. Caller images are never modified; every returned image is a
// new *image.NRGBA.
//
// Images are processed in groups of BatchSize sorted by aspect ratio. ctx is
// checked between groups only.
func (c *Classifier) Classify(ctx context.Context, images []image.Image) (*BatchResult, error) {
	out := &BatchResult{
		Images:  make([]image.Image, len(images)),
		Results: make([]Result, len(images)),
	}
	if len(images) == 0 {
		return out, nil
	}

	for i, img := range images {
		if err := utils.ValidateImage(img); err != nil {
			return nil, fmt.Errorf("%w: image %d: %w", ErrInvalidImage, i, err)
		}
	}

	order := sortByAspectRatio(images)
	timer := common.NewNamedTimer("orientation inference")

	for start := 0; start < len(order); start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+c.cfg.BatchSize, len(order))
		group := order[start:end]

		results, err := c.classifyGroup(images, group, timer)
		if err != nil {
			return nil, err
		}

		for j, idx := range group {
			res := results[j]
			work := utils.ToNRGBA(images[idx])
			if res.Label == LabelFlipped && res.Score > c.cfg.Threshold {
				work = utils.Rotate180(work)
				res.Rotated = true
			}
			out.Images[idx] = work
			out.Results[idx] = res
		}
	}

	out.Elapsed = timer.Total()
	slog.Debug("orientation classify done", "images", len(images), "batches", timer.Laps(), "elapsed", out.Elapsed)
	return out, nil
}

// sortByAspectRatio returns indices of images ordered by ascending w/h.
func sortByAspectRatio(images []image.Image) []int {
	ratios := make([]float64, len(images))
	order := make([]int, len(images))
	for i, img := range images {
		ratios[i] = utils.AspectRatio(img)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ratios[order[a]] < ratios[order[b]] })
	return order
}

// classifyGroup normalizes the images at group into one pooled batch tensor,
// runs the backend once and decodes its output.
func (c *Classifier) classifyGroup(images []image.Image, group []int, timer *common.Timer) ([]Result, error) {
	shape := c.cfg.Shape
	per := shape.Size()
	n := len(group)

	buf := mempool.GetFloat32(n * per)
	defer mempool.PutFloat32(buf)

	for j, idx := range group {
		if err := normalizeInto(buf[j*per:(j+1)*per], images[idx], shape, c.resampler); err != nil {
			return nil, fmt.Errorf("%w: image %d: %w", ErrInvalidImage, idx, err)
		}
	}

	input := onnx.Tensor{
		Data:  buf,
		Shape: []int64{int64(n), int64(shape.Channels), int64(shape.Height), int64(shape.Width)},
	}
	if err := onnx.VerifyImageTensor(input); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	output, err := c.run(input, timer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		minV, maxV, mean := onnx.TensorStats(output.Data)
		slog.Debug("orientation batch", "size", n, "score_min", minV, "score_max", maxV, "score_mean", mean)
	}

	return decodeOutput(output, n)
}
