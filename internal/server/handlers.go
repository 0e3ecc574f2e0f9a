package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/models"
	"github.com/MeKo-Tech/pogocls/internal/orientation"
	"github.com/MeKo-Tech/pogocls/internal/utils"
	"github.com/MeKo-Tech/pogocls/internal/version"
)

const formFieldImage = "image"

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode health response", "error", err)
	}
}

// modelsHandler returns information about the known classifier models.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	modelInfos := models.ListAvailableModels()
	modelList := make([]ModelInfo, len(modelInfos))
	for i, info := range modelInfos {
		modelList[i] = ModelInfo{
			Name:        info.Name,
			Path:        models.ResolveModelPath("", info.Type, info.Filename),
			Type:        info.Type,
			Description: info.Description,
			Input:       info.Input,
		}
	}

	response := ModelsResponse{
		Models: modelList,
		Count:  len(modelList),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode models response", "error", err)
	}
}

// classifyHandler classifies the text-line images uploaded as multipart
// "image" fields and returns one result per image in upload order.
func (s *Server) classifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeErrorResponse(w, "Upload too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[formFieldImage]
	if len(headers) == 0 {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	if s.maxImages > 0 && len(headers) > s.maxImages {
		s.writeErrorResponse(w,
			fmt.Sprintf("Too many images: %d (limit %d)", len(headers), s.maxImages), http.StatusBadRequest)
		return
	}

	if s.classifier == nil {
		s.writeErrorResponse(w, "Classifier not initialized", http.StatusServiceUnavailable)
		return
	}

	images := make([]image.Image, len(headers))
	names := make([]string, len(headers))
	for i, fh := range headers {
		img, err := decodeUpload(fh)
		if err != nil {
			s.writeErrorResponse(w, fmt.Sprintf("Invalid image %q: %v", fh.Filename, err), http.StatusBadRequest)
			return
		}
		images[i] = img
		names[i] = fh.Filename
	}

	// only batches that reach the classifier count against the image quota
	if s.rateLimiter != nil {
		if err := s.rateLimiter.ConsumeImages(getClientIP(r), len(images)); err != nil {
			writeRateLimitResponse(w, err)
			return
		}
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	out, err := s.classifier.Classify(ctx, images)
	if err != nil {
		s.writeErrorResponse(w, "Classification failed: "+err.Error(), classifyErrorStatus(err))
		return
	}

	results, err := buildResults(out, names, wantImages(r))
	if err != nil {
		s.writeErrorResponse(w, "Failed to encode corrected images", http.StatusInternalServerError)
		return
	}
	observeResults("http", out)

	w.Header().Set("Content-Type", "application/json")
	response := ClassifyResponse{
		Success:   true,
		Results:   results,
		ElapsedMs: milliseconds(out.Elapsed),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode classify response", "error", err)
	}
}

func decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	uploadSizeBytes.Observe(float64(fh.Size))

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := utils.DecodeImage(f)
	return img, err
}

// wantImages reports whether the caller asked for the corrected images.
func wantImages(r *http.Request) bool {
	v := r.URL.Query().Get("return_images")
	if v == "" {
		v = r.FormValue("return_images")
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func classifyErrorStatus(err error) int {
	switch {
	case errors.Is(err, orientation.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// buildResults converts a classifier output to response items. names may be
// shorter than the output; missing names are left empty.
func buildResults(out *orientation.BatchResult, names []string, withImages bool) ([]ImageResult, error) {
	results := make([]ImageResult, len(out.Results))
	for i, res := range out.Results {
		results[i] = ImageResult{
			Index:   i,
			Label:   res.Label,
			Score:   res.Score,
			Rotated: res.Rotated,
		}
		if i < len(names) {
			results[i].Filename = names[i]
		}
		if withImages {
			var buf bytes.Buffer
			if err := utils.EncodePNG(&buf, out.Images[i]); err != nil {
				return nil, err
			}
			results[i].Image = base64.StdEncoding.EncodeToString(buf.Bytes())
		}
	}
	return results, nil
}

func observeResults(source string, out *orientation.BatchResult) {
	labels := make([]string, len(out.Results))
	rotated := 0
	for i, res := range out.Results {
		labels[i] = res.Label
		if res.Rotated {
			rotated++
		}
	}
	recordClassification(source, len(out.Results), labels, rotated, out.Elapsed.Seconds())
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ClassifyResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to write error response", "error", err)
	}
}
