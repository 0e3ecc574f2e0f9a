package server

import (
	"context"
	"image"
	"net/http"

	"github.com/MeKo-Tech/pogocls/internal/orientation"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// classifierInterface defines the methods needed by the server from a classifier.
type classifierInterface interface {
	Classify(ctx context.Context, images []image.Image) (*orientation.BatchResult, error)
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	classifier  classifierInterface
	rateLimiter *RateLimiter
	corsOrigin  string
	maxUploadMB int64
	maxImages   int
	timeoutSec  int
}

// Config holds server configuration.
type Config struct {
	Host             string
	Port             int
	CORSOrigin       string
	MaxUploadMB      int64
	MaxImages        int
	TimeoutSec       int
	ClassifierConfig orientation.Config
	RateLimit        RateLimitConfig
}

// RateLimitConfig enables per-client limits. Zero values disable a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxImagesPerDay   int
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type ModelInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Input       [3]int `json:"input"`
}

type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
	Count  int         `json:"count"`
}

// ImageResult is the classification of one uploaded image.
type ImageResult struct {
	Index    int     `json:"index"`
	Filename string  `json:"filename,omitempty"`
	Label    string  `json:"label"`
	Score    float64 `json:"score"`
	Rotated  bool    `json:"rotated"`
	// Image holds the base64 PNG of the corrected image when requested.
	Image string `json:"image,omitempty"`
}

type ClassifyResponse struct {
	Success   bool          `json:"success"`
	Results   []ImageResult `json:"results,omitempty"`
	ElapsedMs float64       `json:"elapsed_ms"`
	Error     string        `json:"error,omitempty"`
}

// NewServer creates a new classification server instance. The classifier is
// built once and shared by all requests.
func NewServer(config Config) (*Server, error) {
	cls, err := orientation.NewClassifier(config.ClassifierConfig)
	if err != nil {
		return nil, err
	}
	return newServer(config, cls), nil
}

// NewServerWithClassifier creates a server around an existing classifier.
// The server takes ownership and closes it in Close.
func NewServerWithClassifier(config Config, cls *orientation.Classifier) *Server {
	if cls == nil {
		return newServer(config, nil)
	}
	return newServer(config, cls)
}

func newServer(config Config, cls classifierInterface) *Server {
	s := &Server{
		classifier:  cls,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		maxImages:   config.MaxImages,
		timeoutSec:  config.TimeoutSec,
	}
	if rl := config.RateLimit; rl.Enabled {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxImagesPerDay)
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.classifier != nil {
		return s.classifier.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/classify", s.corsMiddleware(s.rateLimitMiddleware(s.classifyHandler)))
	// websocket requests are rate limited per message, not per connection
	mux.HandleFunc("/ws/classify", s.classifyWebSocketHandler)
}
