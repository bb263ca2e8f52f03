package testutil

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MockEngine simulates a local capture engine WebSocket server for testing.
type MockEngine struct {
	listener  net.Listener
	server    *http.Server
	conn      *websocket.Conn
	responses map[string]interface{}
	requests  []ReceivedRequest
	mode      string
	mu        sync.Mutex
	connected bool
	identify  map[string]interface{}
}

// ReceivedRequest records one request frame the client sent.
type ReceivedRequest struct {
	RequestType string
	RequestData map[string]interface{}
}

// FailureModes define how the mock engine behaves
const (
	ModeNormal     = "normal"
	ModeRefuse     = "refuse"
	ModeTimeout    = "timeout"
	ModeDisconnect = "disconnect"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMockEngine creates a new mock capture engine server
func NewMockEngine() *MockEngine {
	return &MockEngine{
		responses: make(map[string]interface{}),
		mode:      ModeNormal,
	}
}

// Start begins listening on a dynamic port
func (m *MockEngine) Start() error {
	return m.StartAt("127.0.0.1:0")
}

// StartAt begins listening on a specific address, for tests that need the
// engine to appear at an address a client is already dialing.
func (m *MockEngine) StartAt(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	m.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleWebSocket)

	m.server = &http.Server{Handler: mux}

	go func() {
		_ = m.server.Serve(m.listener)
	}()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)

	return nil
}

// Stop gracefully shuts down the server
func (m *MockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	if m.server != nil {
		_ = m.server.Close()
	}

	if m.listener != nil {
		_ = m.listener.Close()
	}

	m.connected = false
	return nil
}

// Addr returns the server's listening address
func (m *MockEngine) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// URL returns the ws:// URL clients should dial.
func (m *MockEngine) URL() string {
	return "ws://" + m.Addr()
}

// SetFailureMode configures how the server responds to requests
func (m *MockEngine) SetFailureMode(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// QueueResponse queues a specific response frame for a request type
func (m *MockEngine) QueueResponse(requestType string, response interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[requestType] = response
}

// Requests returns a copy of the request frames received so far.
func (m *MockEngine) Requests() []ReceivedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReceivedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// IdentifyData returns the payload of the Identify frame the client sent,
// or nil if no client has identified yet.
func (m *MockEngine) IdentifyData() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identify
}

// EmitEvent pushes an event frame to the connected client.
func (m *MockEngine) EmitEvent(eventType string, eventData interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connected")
	}

	data, err := json.Marshal(eventData)
	if err != nil {
		return err
	}
	return conn.WriteJSON(map[string]interface{}{
		"op": 5,
		"d": map[string]interface{}{
			"eventType": eventType,
			"eventData": json.RawMessage(data),
		},
	})
}

// EmitMeetingDetected pushes a MeetingDetected event for a window.
func (m *MockEngine) EmitMeetingDetected(id, platform, title, meetingURL string) error {
	return m.EmitEvent("MeetingDetected", map[string]interface{}{
		"window": map[string]interface{}{
			"id":         id,
			"platform":   platform,
			"title":      title,
			"meetingUrl": meetingURL,
		},
	})
}

// EmitRecordingEnded pushes a RecordingEnded event for a window.
func (m *MockEngine) EmitRecordingEnded(id, platform, title string) error {
	return m.EmitEvent("RecordingEnded", map[string]interface{}{
		"window": map[string]interface{}{
			"id":       id,
			"platform": platform,
			"title":    title,
		},
	})
}

// EmitRealtime pushes a realtime passthrough event.
func (m *MockEngine) EmitRealtime(kind, uploadID string, data interface{}) error {
	payload := map[string]interface{}{
		"event": kind,
	}
	if uploadID != "" {
		payload["uploadId"] = uploadID
	}
	if data != nil {
		payload["data"] = data
	}
	return m.EmitEvent("Realtime", payload)
}

// handleWebSocket manages the WebSocket connection
func (m *MockEngine) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.connected = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
		_ = conn.Close()
	}()

	// Send Hello message (op 0)
	hello := map[string]interface{}{
		"op": 0,
		"d": map[string]interface{}{
			"engineVersion": "1.0.0-mock",
			"rpcVersion":    1,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	// Wait for Identify message (op 1)
	var identifyMsg map[string]interface{}
	if err := conn.ReadJSON(&identifyMsg); err != nil {
		return
	}
	m.mu.Lock()
	if d, ok := identifyMsg["d"].(map[string]interface{}); ok {
		m.identify = d
	}
	m.mu.Unlock()

	// Send Identified message (op 2)
	identified := map[string]interface{}{
		"op": 2,
		"d": map[string]interface{}{
			"negotiatedRpcVersion": 1,
		},
	}
	if err := conn.WriteJSON(identified); err != nil {
		return
	}

	// Handle subsequent requests
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		response := m.generateResponse(msg)
		if response == nil {
			continue
		}

		m.mu.Lock()
		mode := m.mode
		m.mu.Unlock()

		if mode == ModeTimeout {
			time.Sleep(11 * time.Second) // Longer than the client's 10s timeout
		}

		if mode == ModeDisconnect {
			break
		}

		if err := conn.WriteJSON(response); err != nil {
			break
		}
	}
}

// generateResponse creates a response based on the request and current mode
func (m *MockEngine) generateResponse(msg map[string]interface{}) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := msg["d"].(map[string]interface{})
	if !ok {
		return nil
	}

	requestType, _ := d["requestType"].(string)
	requestID, _ := d["requestId"].(string)

	requestData, _ := d["requestData"].(map[string]interface{})
	m.requests = append(m.requests, ReceivedRequest{
		RequestType: requestType,
		RequestData: requestData,
	})

	// Check for queued response
	if queuedResp, exists := m.responses[requestType]; exists {
		if respMap, ok := queuedResp.(map[string]interface{}); ok {
			if d, ok := respMap["d"].(map[string]interface{}); ok {
				d["requestId"] = requestID
			}
			return respMap
		}
	}

	switch m.mode {
	case ModeRefuse:
		return map[string]interface{}{
			"op": 7,
			"d": map[string]interface{}{
				"requestType": requestType,
				"requestId":   requestID,
				"requestStatus": map[string]interface{}{
					"result":  false,
					"code":    501,
					"comment": "capture refused",
				},
			},
		}

	default:
		// Normal mode - return success
		return map[string]interface{}{
			"op": 7,
			"d": map[string]interface{}{
				"requestType": requestType,
				"requestId":   requestID,
				"requestStatus": map[string]interface{}{
					"result":  true,
					"code":    100,
					"comment": "",
				},
				"responseData": map[string]interface{}{},
			},
		}
	}
}

// Connected returns whether a client is currently connected
func (m *MockEngine) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}
