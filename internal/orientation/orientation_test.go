package orientation

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/onnx/mock"
	"github.com/MeKo-Tech/pogocls/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ModelPath = ""
	return cfg
}

func newTestClassifier(t *testing.T, backend *fakeBackend) *Classifier {
	t.Helper()
	cls, err := NewClassifierWithBackend(testConfig(), backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cls.Close() })
	return cls
}

func TestClassify_PreservesInputOrder(t *testing.T) {
	// Odd ids are predicted upside down with high confidence.
	backend := newFakeBackend(func(img []float32) mock.Prediction {
		if pixelID(img)%2 == 1 {
			return mock.Flipped(0.97)
		}
		return mock.Upright(0.97)
	})
	cls := newTestClassifier(t, backend)

	rng := rand.New(rand.NewSource(7))
	widths := rng.Perm(13)
	images := make([]image.Image, len(widths))
	for i, w := range widths {
		images[i] = testutil.IDImage(uint8(i+1), 8+w*11, 16)
	}

	out, err := cls.Classify(context.Background(), images)
	require.NoError(t, err)
	require.Len(t, out.Images, len(images))
	require.Len(t, out.Results, len(images))
	assert.Equal(t, 3, backend.calls(), "13 images in groups of 6")

	for i := range images {
		id := uint8(i + 1)
		assert.Equal(t, id, testutil.ReadID(out.Images[i]), "image %d", i)
		want := LabelUpright
		if id%2 == 1 {
			want = LabelFlipped
		}
		assert.Equal(t, want, out.Results[i].Label, "image %d", i)
		assert.Equal(t, id%2 == 1, out.Results[i].Rotated, "image %d", i)
	}

	// Batches were fed in ascending aspect ratio order.
	var prevWidth int
	for _, img := range backend.images() {
		idx := int(pixelID(img)) - 1
		w := images[idx].Bounds().Dx()
		assert.GreaterOrEqual(t, w, prevWidth)
		prevWidth = w
	}
}

func TestClassify_UprightImagesUnchanged(t *testing.T) {
	cls := newTestClassifier(t, alwaysUpright(0.99))

	a := testutil.GradientImage(40, 12)
	b := testutil.GradientImage(120, 30)
	snapshotA := append([]uint8(nil), a.Pix...)
	snapshotB := append([]uint8(nil), b.Pix...)

	out, err := cls.Classify(context.Background(), []image.Image{a, b})
	require.NoError(t, err)

	assert.True(t, testutil.EqualPixels(a, out.Images[0]))
	assert.True(t, testutil.EqualPixels(b, out.Images[1]))
	assert.NotSame(t, a, out.Images[0], "outputs are new images")
	assert.Equal(t, snapshotA, a.Pix)
	assert.Equal(t, snapshotB, b.Pix)
	for _, r := range out.Results {
		assert.Equal(t, LabelUpright, r.Label)
		assert.InDelta(t, 0.99, r.Score, 1e-6)
		assert.False(t, r.Rotated)
	}
}

func TestClassify_RotationRule(t *testing.T) {
	tests := []struct {
		name        string
		pred        mock.Prediction
		wantLabel   string
		wantRotated bool
	}{
		{"flipped above threshold", mock.Flipped(0.95), LabelFlipped, true},
		{"flipped at threshold", mock.Flipped(0.9), LabelFlipped, false},
		{"flipped below threshold", mock.Flipped(0.6), LabelFlipped, false},
		{"upright confident", mock.Upright(0.99), LabelUpright, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend(func([]float32) mock.Prediction { return tt.pred })
			cls := newTestClassifier(t, backend)

			src := testutil.GradientImage(30, 10)
			snapshot := append([]uint8(nil), src.Pix...)

			out, err := cls.Classify(context.Background(), []image.Image{src})
			require.NoError(t, err)

			res := out.Results[0]
			assert.Equal(t, tt.wantLabel, res.Label)
			assert.InDelta(t, float64(tt.pred.Score), res.Score, 1e-6)
			assert.Equal(t, tt.wantRotated, res.Rotated)
			assert.Equal(t, snapshot, src.Pix, "caller image must not change")

			got, ok := out.Images[0].(*image.NRGBA)
			require.True(t, ok)
			require.Equal(t, src.Bounds(), got.Bounds())
			w, h := src.Bounds().Dx(), src.Bounds().Dy()
			for y := range h {
				for x := range w {
					want := src.NRGBAAt(x, y)
					if tt.wantRotated {
						want = src.NRGBAAt(w-1-x, h-1-y)
					}
					require.Equal(t, want, got.NRGBAAt(x, y), "pixel (%d,%d)", x, y)
				}
			}
		})
	}
}

func TestClassify_BatchingInvariance(t *testing.T) {
	// Score depends only on the image tensor itself.
	predict := func(img []float32) mock.Prediction {
		var sum float32
		for _, v := range img {
			sum += v
		}
		score := 0.5 + float32(int(sum)%40)/100
		return mock.Flipped(score)
	}

	x := testutil.GradientImage(70, 20)
	y := testutil.IDImage(3, 20, 20)
	z := testutil.IDImage(9, 300, 25)

	alone := newFakeBackend(predict)
	outAlone, err := newTestClassifier(t, alone).Classify(context.Background(), []image.Image{x})
	require.NoError(t, err)

	mixed := newFakeBackend(predict)
	outMixed, err := newTestClassifier(t, mixed).Classify(context.Background(), []image.Image{y, x, z})
	require.NoError(t, err)

	require.Equal(t, 1, mixed.calls())
	// x has the middle aspect ratio, so it is second in the sorted batch.
	assert.Equal(t, alone.images()[0], mixed.images()[1])
	assert.Equal(t, outAlone.Results[0], outMixed.Results[1])
}

func TestClassify_PaddingIsZero(t *testing.T) {
	backend := alwaysUpright(0.99)
	cls := newTestClassifier(t, backend)
	shape := cls.Config().Shape

	white := testutil.CreateTestImage(20, 10, color.White) // ratio 2 -> 96 columns
	wide := testutil.CreateTestImage(1000, 10, color.White)
	_, err := cls.Classify(context.Background(), []image.Image{white, wide})
	require.NoError(t, err)

	imgs := backend.images()
	require.Len(t, imgs, 2)

	plane := shape.Height * shape.Width
	for c := range shape.Channels {
		for row := range shape.Height {
			for col := range shape.Width {
				v := imgs[0][c*plane+row*shape.Width+col]
				if col < 96 {
					require.InDelta(t, 1.0, v, 1e-6, "c=%d row=%d col=%d", c, row, col)
				} else {
					require.Zero(t, v, "c=%d row=%d col=%d", c, row, col)
				}
				// The wide image fills the whole width.
				require.InDelta(t, 1.0, imgs[1][c*plane+row*shape.Width+col], 1e-6)
			}
		}
	}
}

func TestClassify_EmptyInput(t *testing.T) {
	backend := alwaysUpright(0.99)
	cls := newTestClassifier(t, backend)

	for _, in := range [][]image.Image{nil, {}} {
		out, err := cls.Classify(context.Background(), in)
		require.NoError(t, err)
		assert.Empty(t, out.Images)
		assert.Empty(t, out.Results)
		assert.Zero(t, out.Elapsed)
	}
	assert.Zero(t, backend.calls())
}

func TestClassify_InvalidImage(t *testing.T) {
	backend := alwaysUpright(0.99)
	cls := newTestClassifier(t, backend)
	good := testutil.IDImage(1, 10, 10)

	_, err := cls.Classify(context.Background(), []image.Image{good, nil})
	require.ErrorIs(t, err, ErrInvalidImage)

	_, err = cls.Classify(context.Background(), []image.Image{image.NewNRGBA(image.Rect(0, 0, 0, 10)), good})
	require.ErrorIs(t, err, ErrInvalidImage)

	assert.Zero(t, backend.calls(), "validation happens before inference")
}

func TestClassify_BackendFailure(t *testing.T) {
	backend := alwaysUpright(0.99)
	backend.err = errBackend
	cls := newTestClassifier(t, backend)

	out, err := cls.Classify(context.Background(), []image.Image{testutil.IDImage(1, 10, 10)})
	require.ErrorIs(t, err, ErrInference)
	require.ErrorIs(t, err, errBackend)
	assert.Nil(t, out)
	assert.Equal(t, 1, backend.calls(), "no retry")
}

func TestClassify_MalformedOutput(t *testing.T) {
	for _, shape := range [][]int64{{1}, {1, 1}, {2, 2}, {1, 2, 1}} {
		backend := alwaysUpright(0.99)
		backend.shape = shape
		cls := newTestClassifier(t, backend)

		_, err := cls.Classify(context.Background(), []image.Image{testutil.IDImage(1, 10, 10)})
		assert.ErrorIs(t, err, ErrInference, "shape %v", shape)
	}
}

func TestClassify_ContextCanceled(t *testing.T) {
	backend := alwaysUpright(0.99)
	cls := newTestClassifier(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cls.Classify(ctx, []image.Image{testutil.IDImage(1, 10, 10)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, backend.calls())
}

func TestClassify_ElapsedSumsBackendCalls(t *testing.T) {
	backend := alwaysUpright(0.99)
	backend.delay = 5 * time.Millisecond
	cls := newTestClassifier(t, backend)

	images := make([]image.Image, 7)
	for i := range images {
		images[i] = testutil.IDImage(uint8(i), 10+i, 10)
	}
	out, err := cls.Classify(context.Background(), images)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls())
	assert.GreaterOrEqual(t, out.Elapsed, 10*time.Millisecond)
}

func TestClassify_DebugLogsScoreStats(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	cls := newTestClassifier(t, alwaysFlipped(0.95))
	_, err := cls.Classify(context.Background(), []image.Image{testutil.IDImage(1, 30, 10)})
	require.NoError(t, err)

	var batch map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] == "orientation batch" {
			batch = entry
		}
	}
	require.NotNil(t, batch, "no batch log line in %s", buf.String())
	assert.EqualValues(t, 1, batch["size"])
	assert.Less(t, batch["score_min"].(float64), batch["score_max"].(float64))
	assert.Contains(t, batch, "score_mean")
}

func TestClassify_ConcurrentCallsSerialized(t *testing.T) {
	backend := alwaysFlipped(0.95)
	backend.delay = time.Millisecond
	cls := newTestClassifier(t, backend)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			images := []image.Image{testutil.IDImage(uint8(g), 30, 10), testutil.IDImage(uint8(g), 50, 10)}
			out, err := cls.Classify(context.Background(), images)
			assert.NoError(t, err)
			if err == nil {
				assert.Equal(t, uint8(g), testutil.ReadID(out.Images[1]))
			}
		}()
	}
	wg.Wait()

	assert.False(t, backend.overlap.Load(), "backend calls overlapped")
	assert.Equal(t, 8, backend.calls())
}

func TestClassify_SingleChannel(t *testing.T) {
	backend := alwaysUpright(0.99)
	cfg := testConfig()
	cfg.Shape.Channels = 1
	cls, err := NewClassifierWithBackend(cfg, backend)
	require.NoError(t, err)
	defer func() { _ = cls.Close() }()

	_, err = cls.Classify(context.Background(), []image.Image{testutil.CreateTestImage(20, 10, color.White)})
	require.NoError(t, err)

	batch := backend.batches[0]
	assert.Equal(t, []int64{1, 1, 48, 192}, batch.Shape)
	assert.InDelta(t, 1.0, batch.Data[0], 1e-3)
}

func TestClose(t *testing.T) {
	backend := alwaysUpright(0.99)
	cls, err := NewClassifierWithBackend(testConfig(), backend)
	require.NoError(t, err)

	require.NoError(t, cls.Close())
	require.NoError(t, cls.Close())
	assert.Equal(t, 1, backend.closed)

	_, err = cls.Classify(context.Background(), []image.Image{testutil.IDImage(1, 10, 10)})
	assert.ErrorIs(t, err, ErrInference)
}

func TestNewClassifierWithBackend_Errors(t *testing.T) {
	_, err := NewClassifierWithBackend(testConfig(), nil)
	require.ErrorIs(t, err, ErrModelInit)

	cfg := testConfig()
	cfg.BatchSize = 0
	_, err = NewClassifierWithBackend(cfg, alwaysUpright(0.9))
	require.ErrorIs(t, err, ErrModelInit)
}

func TestNewClassifierWithBackend_Warmup(t *testing.T) {
	backend := alwaysUpright(0.99)
	cfg := testConfig()
	cfg.Warmup = true
	cls, err := NewClassifierWithBackend(cfg, backend)
	require.NoError(t, err)
	defer func() { _ = cls.Close() }()

	require.Equal(t, 1, backend.calls())
	assert.Equal(t, []int64{1, 3, 48, 192}, backend.batches[0].Shape)
}

func TestNewClassifierWithBackend_WarmupFailure(t *testing.T) {
	backend := alwaysUpright(0.99)
	backend.err = errBackend
	cfg := testConfig()
	cfg.Warmup = true

	_, err := NewClassifierWithBackend(cfg, backend)
	require.ErrorIs(t, err, ErrModelInit)
	assert.Equal(t, 1, backend.closed, "backend released on failed construction")
}

func TestNewClassifier_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/non/existent/model.onnx"
	_, err := NewClassifier(cfg)
	require.ErrorIs(t, err, ErrModelInit)
}
