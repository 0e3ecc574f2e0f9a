package mock

// Logits is a synthetic classifier output with shape [N, C].
type Logits struct {
	Data  []float32
	Shape []int64
}

// Prediction describes the row a synthetic output should decode to.
type Prediction struct {
	Class int
	Score float32
}

// NewClassLogits builds an [N, classes] output where row i peaks at
// preds[i].Class with value preds[i].Score. Remaining entries are set to
// 1-Score spread evenly, so each row sums to 1 like a softmax head.
func NewClassLogits(preds []Prediction, classes int) Logits {
	if len(preds) == 0 || classes <= 0 {
		return Logits{Data: nil, Shape: []int64{0, int64(max(classes, 0))}}
	}
	data := make([]float32, len(preds)*classes)
	for i, p := range preds {
		score := clamp01(p.Score)
		rest := float32(0)
		if classes > 1 {
			rest = (1 - score) / float32(classes-1)
		}
		row := data[i*classes : (i+1)*classes]
		for c := range row {
			row[c] = rest
		}
		if p.Class >= 0 && p.Class < classes {
			row[p.Class] = score
		}
	}
	return Logits{Data: data, Shape: []int64{int64(len(preds)), int64(classes)}}
}

// NewUniformLogits builds an [n, classes] output with every entry equal to
// value; argmax over such rows is ambiguous.
func NewUniformLogits(n, classes int, value float32) Logits {
	if n <= 0 || classes <= 0 {
		return Logits{Data: nil, Shape: []int64{0, 0}}
	}
	data := make([]float32, n*classes)
	for i := range data {
		data[i] = value
	}
	return Logits{Data: data, Shape: []int64{int64(n), int64(classes)}}
}

// Upright is shorthand for a class-0 prediction.
func Upright(score float32) Prediction { return Prediction{Class: 0, Score: score} }

// Flipped is shorthand for a class-1 (180 degree) prediction.
func Flipped(score float32) Prediction { return Prediction{Class: 1, Score: score} }

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
