package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/pogocls/internal/utils"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second

	wsTypeClassify = "classify"
	wsTypeResponse = "classify_response"
	wsTypeError    = "error"

	wsStatusProcessing = "processing"
	wsStatusCompleted  = "completed"
	wsStatusError      = "error"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketClassifyRequest is a classification request sent by the client.
// Images travel as base64 strings in JSON, which []byte decodes natively.
type WebSocketClassifyRequest struct {
	Type         string   `json:"type"`
	Images       [][]byte `json:"images"`
	Filenames    []string `json:"filenames,omitempty"`
	ReturnImages bool     `json:"return_images,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketClassifyResponse reports progress and results of one request.
type WebSocketClassifyResponse struct {
	Type      string        `json:"type"`
	Status    string        `json:"status"`
	Results   []ImageResult `json:"results,omitempty"`
	ElapsedMs float64       `json:"elapsed_ms,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorType string        `json:"error_type,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// classifyWebSocketHandler handles WebSocket connections for streaming classification.
func (s *Server) classifyWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	s.handleWebSocketConnection(r.Context(), conn, getClientIP(r))
}

// handleWebSocketConnection processes messages until the client goes away.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn, client string) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}

		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, client, data)
		}
	}
}

// handleWebSocketMessage processes one classification request.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, client string, data []byte) {
	var req WebSocketClassifyRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.Type != wsTypeClassify {
		s.sendWebSocketError(conn, "", "invalid_request", "Unsupported request type: "+req.Type)
		return
	}
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Allow(client); err != nil {
			countRateLimitHit(err)
			s.sendWebSocketError(conn, "", "rate_limited", err.Error())
			return
		}
	}
	if len(req.Images) == 0 {
		s.sendWebSocketError(conn, "", "invalid_request", "No image data provided")
		return
	}
	if s.maxImages > 0 && len(req.Images) > s.maxImages {
		s.sendWebSocketError(conn, "", "invalid_request",
			fmt.Sprintf("Too many images: %d (limit %d)", len(req.Images), s.maxImages))
		return
	}
	if s.classifier == nil {
		s.sendWebSocketError(conn, "", "processing_error", "Classifier not initialized")
		return
	}

	images := make([]image.Image, len(req.Images))
	for i, raw := range req.Images {
		img, _, err := utils.DecodeImage(bytes.NewReader(raw))
		if err != nil {
			s.sendWebSocketError(conn, "", "invalid_image", fmt.Sprintf("Failed to decode image %d: %v", i, err))
			return
		}
		images[i] = img
	}

	// only batches that reach the classifier count against the image quota
	if s.rateLimiter != nil {
		if err := s.rateLimiter.ConsumeImages(client, len(images)); err != nil {
			countRateLimitHit(err)
			s.sendWebSocketError(conn, "", "rate_limited", err.Error())
			return
		}
	}

	requestID := strconv.FormatInt(time.Now().UnixNano(), 10)
	s.sendWebSocketResponse(conn, WebSocketClassifyResponse{
		Type:      wsTypeResponse,
		Status:    wsStatusProcessing,
		RequestID: requestID,
	})

	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	out, err := s.classifier.Classify(ctx, images)
	if err != nil {
		s.sendWebSocketError(conn, requestID, "processing_error", fmt.Sprintf("Classification failed: %v", err))
		return
	}

	results, err := buildResults(out, req.Filenames, req.ReturnImages)
	if err != nil {
		s.sendWebSocketError(conn, requestID, "processing_error", "Failed to encode corrected images")
		return
	}
	observeResults("websocket", out)

	s.sendWebSocketResponse(conn, WebSocketClassifyResponse{
		Type:      wsTypeResponse,
		Status:    wsStatusCompleted,
		Results:   results,
		ElapsedMs: milliseconds(out.Elapsed),
		RequestID: requestID,
	})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketClassifyResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketClassifyResponse{
		Type:      wsTypeError,
		Status:    wsStatusError,
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
