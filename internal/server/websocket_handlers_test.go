package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWebSocketConn records the messages written to it.
type mockWebSocketConn struct {
	sentMessages []sentMessage
}

type sentMessage struct {
	messageType int
	data        []byte
}

func (m *mockWebSocketConn) WriteMessage(messageType int, data []byte) error {
	m.sentMessages = append(m.sentMessages, sentMessage{messageType: messageType, data: data})
	return nil
}

func (m *mockWebSocketConn) responses(t *testing.T) []WebSocketClassifyResponse {
	t.Helper()
	out := make([]WebSocketClassifyResponse, len(m.sentMessages))
	for i, msg := range m.sentMessages {
		assert.Equal(t, websocket.TextMessage, msg.messageType)
		require.NoError(t, json.Unmarshal(msg.data, &out[i]))
	}
	return out
}

func classifyMessage(t *testing.T, req WebSocketClassifyRequest) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func TestServer_HandleWebSocketMessage(t *testing.T) {
	cls := &fakeClassifier{flipWidth: 12, elapsed: 3 * time.Millisecond}
	server := newTestServer(cls)
	conn := &mockWebSocketConn{}

	msg := classifyMessage(t, WebSocketClassifyRequest{
		Type: "classify",
		Images: [][]byte{
			encodeImageToPNG(t, createTestImage(12, 4)),
			encodeImageToPNG(t, createTestImage(20, 4)),
		},
		Filenames: []string{"first.png"},
	})
	server.handleWebSocketMessage(context.Background(), conn, "client", msg)

	responses := conn.responses(t)
	require.Len(t, responses, 2)

	assert.Equal(t, "classify_response", responses[0].Type)
	assert.Equal(t, "processing", responses[0].Status)
	assert.NotEmpty(t, responses[0].RequestID)

	done := responses[1]
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, responses[0].RequestID, done.RequestID)
	assert.InDelta(t, 3.0, done.ElapsedMs, 1e-9)
	require.Len(t, done.Results, 2)
	assert.Equal(t, "first.png", done.Results[0].Filename)
	assert.Equal(t, "180", done.Results[0].Label)
	assert.True(t, done.Results[0].Rotated)
	assert.Empty(t, done.Results[1].Filename)
	assert.Equal(t, "0", done.Results[1].Label)
	assert.Empty(t, done.Results[1].Image)
}

func TestServer_HandleWebSocketMessage_ReturnImages(t *testing.T) {
	server := newTestServer(&fakeClassifier{})
	conn := &mockWebSocketConn{}

	msg := classifyMessage(t, WebSocketClassifyRequest{
		Type:         "classify",
		Images:       [][]byte{encodeImageToPNG(t, createTestImage(8, 4))},
		ReturnImages: true,
	})
	server.handleWebSocketMessage(context.Background(), conn, "client", msg)

	responses := conn.responses(t)
	require.Len(t, responses, 2)
	require.Len(t, responses[1].Results, 1)
	assert.NotEmpty(t, responses[1].Results[0].Image)
}

func TestServer_HandleWebSocketMessage_Errors(t *testing.T) {
	valid := encodeImageToPNG(t, createTestImage(8, 4))

	tests := []struct {
		name          string
		classifier    classifierInterface
		limiter       *RateLimiter
		data          []byte
		expectedType  string
		expectedCalls int
	}{
		{
			name:         "malformed json",
			classifier:   &fakeClassifier{},
			data:         []byte("{"),
			expectedType: "invalid_request",
		},
		{
			name:         "wrong type",
			classifier:   &fakeClassifier{},
			data:         classifyMessage(t, WebSocketClassifyRequest{Type: "ocr", Images: [][]byte{valid}}),
			expectedType: "invalid_request",
		},
		{
			name:         "no images",
			classifier:   &fakeClassifier{},
			data:         classifyMessage(t, WebSocketClassifyRequest{Type: "classify"}),
			expectedType: "invalid_request",
		},
		{
			name:       "too many images",
			classifier: &fakeClassifier{},
			data: classifyMessage(t, WebSocketClassifyRequest{
				Type:   "classify",
				Images: [][]byte{valid, valid, valid, valid, valid, valid, valid, valid, valid},
			}),
			expectedType: "invalid_request",
		},
		{
			name:         "quota",
			classifier:   &fakeClassifier{},
			limiter:      NewRateLimiter(0, 0, 0, 1),
			data:         classifyMessage(t, WebSocketClassifyRequest{Type: "classify", Images: [][]byte{valid, valid}}),
			expectedType: "rate_limited",
		},
		{
			name:         "undecodable image",
			classifier:   &fakeClassifier{},
			data:         classifyMessage(t, WebSocketClassifyRequest{Type: "classify", Images: [][]byte{[]byte("nope")}}),
			expectedType: "invalid_image",
		},
		{
			name:          "classifier failure",
			classifier:    &fakeClassifier{err: errors.New("backend down")},
			data:          classifyMessage(t, WebSocketClassifyRequest{Type: "classify", Images: [][]byte{valid}}),
			expectedType:  "processing_error",
			expectedCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(tt.classifier)
			server.rateLimiter = tt.limiter
			conn := &mockWebSocketConn{}

			server.handleWebSocketMessage(context.Background(), conn, "client", tt.data)

			responses := conn.responses(t)
			require.NotEmpty(t, responses)
			last := responses[len(responses)-1]
			assert.Equal(t, "error", last.Type)
			assert.Equal(t, "error", last.Status)
			assert.Equal(t, tt.expectedType, last.ErrorType)
			assert.NotEmpty(t, last.Error)
			assert.Equal(t, tt.expectedCalls, tt.classifier.(*fakeClassifier).calls)
		})
	}
}

func TestServer_HandleWebSocketMessage_RateLimitedPerMessage(t *testing.T) {
	cls := &fakeClassifier{}
	server := newTestServer(cls)
	server.rateLimiter = NewRateLimiter(1, 0, 0, 0)
	conn := &mockWebSocketConn{}

	msg := classifyMessage(t, WebSocketClassifyRequest{
		Type:   "classify",
		Images: [][]byte{encodeImageToPNG(t, createTestImage(8, 4))},
	})
	for range 3 {
		server.handleWebSocketMessage(context.Background(), conn, "client", msg)
	}

	var completed, limited int
	for _, r := range conn.responses(t) {
		switch {
		case r.Status == "completed":
			completed++
		case r.ErrorType == "rate_limited":
			limited++
			assert.Contains(t, r.Error, "minute")
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, 2, limited)
	assert.Equal(t, 1, cls.calls)

	// other clients have their own window
	server.handleWebSocketMessage(context.Background(), conn, "other", msg)
	assert.Equal(t, 2, cls.calls)
}

func TestServer_HandleWebSocketMessage_RejectedBatchesAreNotCharged(t *testing.T) {
	valid := encodeImageToPNG(t, createTestImage(8, 4))

	tests := []struct {
		name       string
		classifier classifierInterface
		images     [][]byte
		errorType  string
	}{
		{
			name:       "undecodable image",
			classifier: &fakeClassifier{},
			images:     [][]byte{valid, []byte("nope")},
			errorType:  "invalid_image",
		},
		{
			name:      "no classifier",
			images:    [][]byte{valid, valid},
			errorType: "processing_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(tt.classifier)
			server.rateLimiter = NewRateLimiter(0, 0, 0, 2)
			conn := &mockWebSocketConn{}

			server.handleWebSocketMessage(context.Background(), conn, "client",
				classifyMessage(t, WebSocketClassifyRequest{Type: "classify", Images: tt.images}))

			responses := conn.responses(t)
			require.Len(t, responses, 1, "no processing message before the batch is accepted")
			assert.Equal(t, tt.errorType, responses[0].ErrorType)
			assert.Zero(t, server.rateLimiter.Usage("client").imagesToday)
			assert.Equal(t, 1, server.rateLimiter.Usage("client").requestsToday)
		})
	}
}

func TestServer_SendWebSocketError(t *testing.T) {
	conn := &mockWebSocketConn{}
	server := &Server{}

	server.sendWebSocketError(conn, "42", "test_error", "Test error message")

	responses := conn.responses(t)
	require.Len(t, responses, 1)
	assert.Equal(t, WebSocketClassifyResponse{
		Type:      "error",
		Status:    "error",
		Error:     "Test error message",
		ErrorType: "test_error",
		RequestID: "42",
	}, responses[0])
}

func TestServer_ClassifyWebSocket_EndToEnd(t *testing.T) {
	cls := &fakeClassifier{}
	server := newTestServer(cls)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/classify"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() {
		_ = conn.Close()
		_ = resp.Body.Close()
	}()

	require.NoError(t, conn.WriteJSON(WebSocketClassifyRequest{
		Type:   "classify",
		Images: [][]byte{encodeImageToPNG(t, createTestImage(10, 5))},
	}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var processing, completed WebSocketClassifyResponse
	require.NoError(t, conn.ReadJSON(&processing))
	require.NoError(t, conn.ReadJSON(&completed))

	assert.Equal(t, "processing", processing.Status)
	assert.Equal(t, "completed", completed.Status)
	require.Len(t, completed.Results, 1)
	assert.Equal(t, "0", completed.Results[0].Label)
}

func TestServer_ClassifyWebSocket_RateLimitedPerMessage(t *testing.T) {
	server := newTestServer(&fakeClassifier{})
	server.rateLimiter = NewRateLimiter(1, 0, 0, 0)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/classify"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() {
		_ = conn.Close()
		_ = resp.Body.Close()
	}()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	req := WebSocketClassifyRequest{
		Type:   "classify",
		Images: [][]byte{encodeImageToPNG(t, createTestImage(10, 5))},
	}

	require.NoError(t, conn.WriteJSON(req))
	var processing, completed WebSocketClassifyResponse
	require.NoError(t, conn.ReadJSON(&processing))
	require.NoError(t, conn.ReadJSON(&completed))
	assert.Equal(t, "completed", completed.Status)

	require.NoError(t, conn.WriteJSON(req))
	var limited WebSocketClassifyResponse
	require.NoError(t, conn.ReadJSON(&limited))
	assert.Equal(t, "error", limited.Status)
	assert.Equal(t, "rate_limited", limited.ErrorType)
}

func TestWebSocketUpgrader(t *testing.T) {
	allowed := upgrader.CheckOrigin(&http.Request{
		Header: http.Header{"Origin": []string{"http://example.com"}},
	})
	assert.True(t, allowed)
	assert.Equal(t, 1024, upgrader.ReadBufferSize)
	assert.Equal(t, 1024, upgrader.WriteBufferSize)
}
