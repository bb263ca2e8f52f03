package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kilroy-kilroy/Call-Recorder/internal/diaglog"
)

// ConnectionState reflects the engine link as seen by the rest of the daemon.
type ConnectionState struct {
	Connected     bool      `json:"connected"`
	EngineVersion string    `json:"engine_version"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Client is a WebSocket client for the local capture engine.
type Client struct {
	url         string
	apiURL      string
	conn        *websocket.Conn
	mu          sync.RWMutex
	connected   bool
	identified  bool
	requestID   int
	requestIDMu sync.Mutex // guards requestID increment
	responses   map[int]chan *Response
	responseMu  sync.RWMutex

	logger   *diaglog.Logger
	loggerMu sync.RWMutex

	// Event handlers
	onMeetingDetected func(MeetingEvent)
	onMeetingUpdated  func(MeetingEvent)
	onRecordingEnded  func(RecordingEndedEvent)
	onRealtime        func(RealtimeEvent)
	onDisconnected    func()

	state   ConnectionState
	stateMu sync.RWMutex

	// Reconnection
	reconnectEnabled bool
	reconnectDelay   time.Duration
	reconnecting     bool
	reconnectMu      sync.Mutex
	stopChan         chan struct{}

	// Identification
	identifiedChan chan struct{}
	helloChan      chan *HelloData
	helloErrChan   chan error
}

// Message types
type Message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type HelloData struct {
	EngineVersion string `json:"engineVersion"`
	RPCVersion    int    `json:"rpcVersion"`
}

type IdentifyData struct {
	RPCVersion int    `json:"rpcVersion"`
	APIURL     string `json:"apiUrl,omitempty"`
}

type Request struct {
	RequestType string      `json:"requestType"`
	RequestID   string      `json:"requestId"`
	RequestData interface{} `json:"requestData,omitempty"`
}

type Response struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment,omitempty"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData,omitempty"`
}

type Event struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// OpCodes for the WebSocket protocol
const (
	OpHello           = 0
	OpIdentify        = 1
	OpIdentified      = 2
	OpEvent           = 5
	OpRequest         = 6
	OpRequestResponse = 7
)

// NewClient creates a capture engine client. apiURL is forwarded to the
// engine during the Identify handshake so realtime endpoints target the
// configured region.
func NewClient(url, apiURL string) *Client {
	return &Client{
		url:              url,
		apiURL:           apiURL,
		responses:        make(map[int]chan *Response),
		reconnectEnabled: true,
		reconnectDelay:   5 * time.Second,
		stopChan:         make(chan struct{}),
		identifiedChan:   make(chan struct{}),
		helloChan:        make(chan *HelloData, 1),
		helloErrChan:     make(chan error, 1),
		state: ConnectionState{
			LastUpdated: time.Now(),
		},
	}
}

// Connect establishes the WebSocket connection and completes the
// Hello/Identify handshake.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.updateState(false, "")
		// A failed dial never starts the read loop, so retry from here;
		// reconnect is reentrancy-guarded when the loop is already running.
		if c.reconnectEnabled {
			go c.reconnect()
		}
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	// Start message reader (handles Hello, Identified, and all subsequent messages)
	go c.readMessages()

	select {
	case hello := <-c.helloChan:
		return c.identify(hello)
	case err := <-c.helloErrChan:
		c.disconnect()
		return err
	case <-time.After(10 * time.Second):
		c.disconnect()
		return fmt.Errorf("timeout waiting for Hello message")
	}
}

// identify answers the engine's Hello with an Identify carrying the API URL.
func (c *Client) identify(hello *HelloData) error {
	identify := IdentifyData{
		RPCVersion: 1,
		APIURL:     c.apiURL,
	}

	msg := Message{
		Op: OpIdentify,
	}
	msg.D, _ = json.Marshal(identify)

	c.mu.RLock()
	err := c.conn.WriteJSON(msg)
	c.mu.RUnlock()

	if err != nil {
		c.disconnect()
		return err
	}

	select {
	case <-c.identifiedChan:
		c.mu.Lock()
		c.identified = true
		c.mu.Unlock()
		c.updateState(true, hello.EngineVersion)
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventWSConnect,
			Payload: map[string]interface{}{"engine_version": hello.EngineVersion},
		})
		return nil
	case <-time.After(10 * time.Second):
		c.disconnect()
		return fmt.Errorf("timeout waiting for Identified message")
	}
}

// readMessages continuously reads and dispatches WebSocket messages
func (c *Client) readMessages() {
	defer func() {
		c.disconnect()
		if c.reconnectEnabled {
			c.reconnect()
		}
	}()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		var msg Message
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		if err := conn.ReadJSON(&msg); err != nil {
			if c.onDisconnected != nil {
				c.onDisconnected()
			}
			return
		}

		var rawMsg interface{}
		if jerr := json.Unmarshal(msg.D, &rawMsg); jerr == nil {
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventWSRecv,
				Payload: rawMsg,
			})
		}

		switch msg.Op {
		case OpHello:
			var hello HelloData
			if err := json.Unmarshal(msg.D, &hello); err != nil {
				select {
				case c.helloErrChan <- err:
				default:
				}
				return
			}
			select {
			case c.helloChan <- &hello:
			default:
			}

		case OpIdentified:
			select {
			case c.identifiedChan <- struct{}{}:
			default:
			}

		case OpEvent:
			var event Event
			if err := json.Unmarshal(msg.D, &event); err == nil {
				c.handleEvent(&event)
			}

		case OpRequestResponse:
			var resp Response
			if err := json.Unmarshal(msg.D, &resp); err == nil {
				c.handleResponse(&resp)
			}
		}
	}
}

// handleEvent dispatches engine events to registered handlers. Handlers run
// on the read loop, so events for a source arrive in order.
func (c *Client) handleEvent(event *Event) {
	switch event.EventType {
	case EventTypeMeetingDetected, EventTypeMeetingUpdated:
		var data windowPayload
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		me := MeetingEvent{
			SourceID:   data.Window.ID,
			Platform:   data.Window.Platform,
			Title:      data.Window.Title,
			MeetingURL: data.Window.MeetingURL,
		}
		if event.EventType == EventTypeMeetingDetected {
			if c.onMeetingDetected != nil {
				c.onMeetingDetected(me)
			}
		} else if c.onMeetingUpdated != nil {
			c.onMeetingUpdated(me)
		}

	case EventTypeRecordingEnded:
		var data windowPayload
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		if c.onRecordingEnded != nil {
			c.onRecordingEnded(RecordingEndedEvent{
				SourceID: data.Window.ID,
				Platform: data.Window.Platform,
				Title:    data.Window.Title,
			})
		}

	case EventTypeRealtime:
		var data RealtimeEvent
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		if c.onRealtime != nil {
			c.onRealtime(data)
		}
	}
}

// handleResponse routes responses to waiting request channels
func (c *Client) handleResponse(resp *Response) {
	c.responseMu.RLock()
	defer c.responseMu.RUnlock()

	var id int
	if _, err := fmt.Sscanf(resp.RequestID, "%d", &id); err != nil {
		log.Printf("Warning: failed to parse request ID: %v", err)
		return
	}

	if ch, ok := c.responses[id]; ok {
		ch <- resp
	}
}

// sendRequest sends a request and waits for response
func (c *Client) sendRequest(requestType string, requestData interface{}) (*Response, error) {
	c.mu.RLock()
	if !c.connected || !c.identified {
		c.mu.RUnlock()
		return nil, fmt.Errorf("engine not connected")
	}
	c.mu.RUnlock()

	c.requestIDMu.Lock()
	c.requestID++
	id := c.requestID
	c.requestIDMu.Unlock()
	requestID := fmt.Sprintf("%d", id)

	req := Request{
		RequestType: requestType,
		RequestID:   requestID,
		RequestData: requestData,
	}

	msg := Message{
		Op: OpRequest,
	}
	msg.D, _ = json.Marshal(req)

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventWSSend,
		Payload: map[string]interface{}{"request_type": requestType, "request_id": requestID},
	})

	respChan := make(chan *Response, 1)
	c.responseMu.Lock()
	c.responses[id] = respChan
	c.responseMu.Unlock()

	defer func() {
		c.responseMu.Lock()
		delete(c.responses, id)
		c.responseMu.Unlock()
	}()

	c.mu.RLock()
	err := c.conn.WriteJSON(msg)
	c.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		if !resp.RequestStatus.Result {
			return nil, fmt.Errorf("request failed: %s (request: %s, code: %d)", resp.RequestStatus.Comment, requestType, resp.RequestStatus.Code)
		}
		return resp, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("request timeout after 10s (request: %s)", requestType)
	}
}

// disconnect closes the WebSocket connection
func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventWSDisconnect,
			Payload: map[string]interface{}{"url": c.url},
		})
		if err := c.conn.Close(); err != nil {
			log.Printf("Warning: failed to close connection: %v", err)
		}
		c.conn = nil
	}
	c.connected = false
	c.identified = false

	c.updateState(false, "")
}

// reconnect attempts to reconnect with exponential backoff and jitter.
// Reconnection never starts or stops a capture on its own; active sessions
// are reconciled by the engine's events after the link comes back.
func (c *Client) reconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()
	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	delay := c.reconnectDelay
	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
			attempt++
			c.log(diaglog.LogEntry{
				Event:     diaglog.EventWSReconnectAttempt,
				Component: diaglog.ComponentReconnect,
				Payload:   map[string]interface{}{"attempt": attempt, "delay_ms": delay.Milliseconds()},
			})
			log.Printf("[RECONNECT] Attempt %d: Retrying connection in %d seconds...", attempt, delay/time.Second)
			if err := c.Connect(); err == nil {
				c.log(diaglog.LogEntry{
					Event:     diaglog.EventWSReconnectSuccess,
					Component: diaglog.ComponentReconnect,
					Payload:   map[string]interface{}{"attempt": attempt},
				})
				log.Printf("[RECONNECT] Successfully reconnected on attempt %d", attempt)
				return
			} else {
				c.log(diaglog.LogEntry{
					Event:     diaglog.EventWSReconnectFailed,
					Component: diaglog.ComponentReconnect,
					Payload:   map[string]interface{}{"attempt": attempt, "error": err.Error()},
				})
				log.Printf("[RECONNECT] Attempt %d failed, backing off...", attempt)
			}

			// Exponential backoff with jitter to avoid thundering herd
			delay = delay * 2
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}

			// Add jitter: ±10% of delay
			jitter := time.Duration((delay.Seconds()*0.2)*(rand.Float64()-0.5)) * time.Second
			delay = delay + jitter

			if delay < time.Second {
				delay = time.Second
			}

			log.Printf("[RECONNECT] Next retry in %d seconds (attempt %d)", delay/time.Second, attempt+1)
		}
	}
}

// updateState updates the cached connection state
func (c *Client) updateState(connected bool, version string) {
	c.stateMu.Lock()
	c.state.Connected = connected
	c.state.EngineVersion = version
	c.state.LastUpdated = time.Now()
	c.stateMu.Unlock()
}

// State returns a snapshot of the engine link state.
func (c *Client) State() ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Disconnect gracefully closes connection and stops reconnection
func (c *Client) Disconnect() {
	c.reconnectEnabled = false
	close(c.stopChan)
	c.disconnect()
}

// SetLogger injects a diaglog.Logger. Safe to call any time before or after
// Connect. Passing nil is a no-op (disables structured logging).
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

// log emits a LogEntry when a logger is set. Component defaults to
// ComponentEngineClient when left empty.
func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentEngineClient
	}
	l.Log(entry)
}

// SetReconnectEnabled enables/disables automatic reconnection
func (c *Client) SetReconnectEnabled(enabled bool) {
	c.reconnectEnabled = enabled
}

// OnMeetingDetected registers the handler for newly detected meetings.
func (c *Client) OnMeetingDetected(handler func(MeetingEvent)) {
	c.onMeetingDetected = handler
}

// OnMeetingUpdated registers the handler for meeting metadata changes.
func (c *Client) OnMeetingUpdated(handler func(MeetingEvent)) {
	c.onMeetingUpdated = handler
}

// OnRecordingEnded registers the handler for capture completion.
func (c *Client) OnRecordingEnded(handler func(RecordingEndedEvent)) {
	c.onRecordingEnded = handler
}

// OnRealtime registers the handler for realtime passthrough events.
func (c *Client) OnRealtime(handler func(RealtimeEvent)) {
	c.onRealtime = handler
}

// OnDisconnected registers callback for disconnection events
func (c *Client) OnDisconnected(handler func()) {
	c.onDisconnected = handler
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.identified
}
