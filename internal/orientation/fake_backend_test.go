package orientation

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/onnx"
	"github.com/MeKo-Tech/pogocls/internal/onnx/mock"
)

// fakeBackend records every batch it receives and answers with predict,
// which is called once per image with that image's [C, H, W] slice.
type fakeBackend struct {
	mu       sync.Mutex
	batches  []onnx.Tensor
	closed   int
	inflight atomic.Int32
	overlap  atomic.Bool

	predict func(img []float32) mock.Prediction
	err     error
	shape   []int64 // overrides the output shape when set
	delay   time.Duration
}

func newFakeBackend(predict func(img []float32) mock.Prediction) *fakeBackend {
	return &fakeBackend{predict: predict}
}

func alwaysUpright(score float32) *fakeBackend {
	return newFakeBackend(func([]float32) mock.Prediction { return mock.Upright(score) })
}

func alwaysFlipped(score float32) *fakeBackend {
	return newFakeBackend(func([]float32) mock.Prediction { return mock.Flipped(score) })
}

func (f *fakeBackend) Run(input onnx.Tensor) (onnx.Tensor, error) {
	if f.inflight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inflight.Add(-1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	// The classifier reuses its input buffers, so keep a private copy.
	cp := onnx.Tensor{
		Data:  append([]float32(nil), input.Data...),
		Shape: append([]int64(nil), input.Shape...),
	}
	f.mu.Lock()
	f.batches = append(f.batches, cp)
	f.mu.Unlock()

	if f.err != nil {
		return onnx.Tensor{}, f.err
	}

	n := int(input.Shape[0])
	per := len(input.Data) / n
	preds := make([]mock.Prediction, n)
	for i := range n {
		preds[i] = f.predict(cp.Data[i*per : (i+1)*per])
	}
	l := mock.NewClassLogits(preds, 2)
	out := onnx.Tensor{Data: l.Data, Shape: l.Shape}
	if f.shape != nil {
		out.Shape = f.shape
	}
	return out, nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// images returns every per-image tensor seen so far, in call order.
func (f *fakeBackend) images() [][]float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]float32
	for _, b := range f.batches {
		n := int(b.Shape[0])
		per := len(b.Data) / n
		for i := range n {
			out = append(out, b.Data[i*per:(i+1)*per])
		}
	}
	return out
}

var errBackend = errors.New("backend exploded")

// pixelID recovers the red value of the first pixel of a normalized tensor.
func pixelID(img []float32) uint8 {
	return uint8((img[0]*0.5+0.5)*255 + 0.5)
}
