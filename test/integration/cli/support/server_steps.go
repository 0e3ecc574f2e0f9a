package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/MeKo-Tech/pogocls/internal/onnx"
	"github.com/MeKo-Tech/pogocls/internal/onnx/mock"
	"github.com/MeKo-Tech/pogocls/internal/orientation"
	"github.com/MeKo-Tech/pogocls/internal/server"
	"github.com/cucumber/godog"
)

// scriptedBackend answers every image of every batch with the same
// prediction. It stands in for the ONNX session so scenarios run without
// model files.
type scriptedBackend struct {
	mu      sync.Mutex
	pred    mock.Prediction
	batches int
}

func (b *scriptedBackend) Run(input onnx.Tensor) (onnx.Tensor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches++
	n := int(input.Shape[0])
	preds := make([]mock.Prediction, n)
	for i := range preds {
		preds[i] = b.pred
	}
	out := mock.NewClassLogits(preds, 2)
	return onnx.Tensor{Data: out.Data, Shape: out.Shape}, nil
}

func (b *scriptedBackend) Close() error { return nil }

func (b *scriptedBackend) set(pred mock.Prediction) {
	b.mu.Lock()
	b.pred = pred
	b.mu.Unlock()
}

// TestServer is an in-process classification server.
type TestServer struct {
	HTTP    *httptest.Server
	Server  *server.Server
	Backend *scriptedBackend
}

// Close shuts the HTTP listener down and releases the classifier.
func (s *TestServer) Close() error {
	s.HTTP.Close()
	return s.Server.Close()
}

// RegisterServerSteps registers HTTP server steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a classification server is running$`, testCtx.aClassificationServerIsRunning)
	sc.Step(`^a classification server is running with at most (\d+) images per day$`,
		testCtx.aClassificationServerWithImageQuota)
	sc.Step(`^the model predicts "(0|180)" with score ([0-9.]+)$`, testCtx.theModelPredicts)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^result (\d+) should have label "([^"]*)" and rotated (true|false)$`, testCtx.resultShouldHave)
}

func (testCtx *TestContext) startServer(rl server.RateLimitConfig) error {
	backend := &scriptedBackend{pred: mock.Upright(0.99)}
	cfg := orientation.DefaultConfig()
	cfg.GPU = onnx.DefaultGPUConfig()
	cls, err := orientation.NewClassifierWithBackend(cfg, backend)
	if err != nil {
		return err
	}

	srv := server.NewServerWithClassifier(server.Config{
		CORSOrigin:       "*",
		MaxUploadMB:      10,
		MaxImages:        16,
		TimeoutSec:       10,
		ClassifierConfig: cfg,
		RateLimit:        rl,
	}, cls)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	testCtx.Server = &TestServer{HTTP: httptest.NewServer(mux), Server: srv, Backend: backend}
	return nil
}

func (testCtx *TestContext) aClassificationServerIsRunning() error {
	return testCtx.startServer(server.RateLimitConfig{})
}

func (testCtx *TestContext) aClassificationServerWithImageQuota(limit int) error {
	return testCtx.startServer(server.RateLimitConfig{Enabled: true, MaxImagesPerDay: limit})
}

func (testCtx *TestContext) theModelPredicts(label string, score float64) error {
	if testCtx.Server == nil {
		return fmt.Errorf("no server running")
	}
	if label == orientation.LabelFlipped {
		testCtx.Server.Backend.set(mock.Flipped(float32(score)))
	} else {
		testCtx.Server.Backend.set(mock.Upright(float32(score)))
	}
	return nil
}

func (testCtx *TestContext) recordResponse(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = body
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) iGET(path string) error {
	if testCtx.Server == nil {
		return fmt.Errorf("no server running")
	}
	resp, err := http.Get(testCtx.Server.HTTP.URL + path)
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

// iUploadTo posts a comma separated list of files as "image" form parts.
func (testCtx *TestContext) iUploadTo(files, path string) error {
	if testCtx.Server == nil {
		return fmt.Errorf("no server running")
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range strings.Split(files, ",") {
		name = strings.TrimSpace(name)
		data, err := os.ReadFile(testCtx.Path(name))
		if err != nil {
			return err
		}
		part, err := w.CreateFormFile("image", filepath.Base(name))
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	resp, err := http.Post(testCtx.Server.HTTP.URL+path, w.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(expected string) error {
	if !bytes.Contains(testCtx.LastHTTPResponse, []byte(expected)) {
		return fmt.Errorf("response does not contain %q: %s", expected, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]
	if got != expected {
		return fmt.Errorf("header %s: expected %q, got %q", name, expected, got)
	}
	return nil
}

func (testCtx *TestContext) resultShouldHave(index int, label, rotated string) error {
	var resp server.ClassifyResponse
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &resp); err != nil {
		return fmt.Errorf("invalid classify response: %w", err)
	}
	if index < 0 || index >= len(resp.Results) {
		return fmt.Errorf("result %d out of range (%d results)", index, len(resp.Results))
	}
	r := resp.Results[index]
	want, _ := strconv.ParseBool(rotated)
	if r.Label != label || r.Rotated != want {
		return fmt.Errorf("result %d: expected label %s rotated %v, got label %s rotated %v",
			index, label, want, r.Label, r.Rotated)
	}
	return nil
}
