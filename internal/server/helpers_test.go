package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/orientation"
	"github.com/stretchr/testify/require"
)

// fakeClassifier implements classifierInterface. Images exactly flipWidth
// pixels wide are reported as flipped and rotated.
type fakeClassifier struct {
	err       error
	flipWidth int
	elapsed   time.Duration
	calls     int
	lastN     int
	closed    bool
}

func (f *fakeClassifier) Classify(ctx context.Context, images []image.Image) (*orientation.BatchResult, error) {
	f.calls++
	f.lastN = len(images)
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := &orientation.BatchResult{
		Images:  make([]image.Image, len(images)),
		Results: make([]orientation.Result, len(images)),
		Elapsed: f.elapsed,
	}
	for i, img := range images {
		out.Images[i] = img
		out.Results[i] = orientation.Result{Label: orientation.LabelUpright, Score: 0.99}
		if f.flipWidth > 0 && img.Bounds().Dx() == f.flipWidth {
			out.Results[i] = orientation.Result{Label: orientation.LabelFlipped, Score: 0.95, Rotated: true}
		}
	}
	return out, nil
}

func (f *fakeClassifier) Close() error {
	f.closed = true
	return nil
}

// createTestImage creates a simple gradient image for testing.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{byte(x % 256), byte(y % 256), 0, 255})
		}
	}
	return img
}

// encodeImageToPNG encodes an image to PNG bytes.
func encodeImageToPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type upload struct {
	filename string
	data     []byte
}

// createClassifyRequest builds a multipart classify request with the given uploads.
func createClassifyRequest(t *testing.T, target string, uploads []upload, extraFields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, u := range uploads {
		part, err := writer.CreateFormFile(formFieldImage, u.filename)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	for key, value := range extraFields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newTestServer(cls classifierInterface) *Server {
	return newServer(Config{
		CORSOrigin:  "*",
		MaxUploadMB: 10,
		MaxImages:   8,
		TimeoutSec:  5,
	}, cls)
}
