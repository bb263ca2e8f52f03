package engine

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/kilroy-kilroy/Call-Recorder/testutil"
)

func newConnectedClient(t *testing.T, mock *testutil.MockEngine) *Client {
	t.Helper()

	client := NewClient(mock.URL(), "https://us-west-2.recall.ai/api/v1")
	client.SetReconnectEnabled(false)
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return client
}

func TestNewClient(t *testing.T) {
	client := NewClient("ws://localhost:4455", "https://us-west-2.recall.ai/api/v1")

	if client == nil {
		t.Fatal("NewClient returned nil")
	}

	if client.url != "ws://localhost:4455" {
		t.Errorf("url = %s, want ws://localhost:4455", client.url)
	}

	if client.State().Connected {
		t.Error("client should start disconnected")
	}
}

func TestConnect_Success(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := newConnectedClient(t, mock)
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("client should be connected")
	}

	state := client.State()
	if !state.Connected {
		t.Error("state should report connected")
	}
	if state.EngineVersion != "1.0.0-mock" {
		t.Errorf("engine version = %s, want 1.0.0-mock", state.EngineVersion)
	}
}

func TestConnect_SendsAPIURLInIdentify(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := newConnectedClient(t, mock)
	defer client.Disconnect()

	identify := mock.IdentifyData()
	if identify == nil {
		t.Fatal("mock engine never received Identify")
	}
	if got, _ := identify["apiUrl"].(string); got != "https://us-west-2.recall.ai/api/v1" {
		t.Errorf("apiUrl = %q, want the configured API URL", got)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	client := NewClient("ws://invalid:9999", "")
	client.SetReconnectEnabled(false)
	err := client.Connect()

	if err == nil {
		t.Error("Connect should fail with invalid URL")
	}

	if client.IsConnected() {
		t.Error("client should not be connected")
	}
}

func TestConnect_AlreadyConnected(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := newConnectedClient(t, mock)
	defer client.Disconnect()

	if err := client.Connect(); err == nil {
		t.Error("Connect should fail when already connected")
	}
}

func TestDisconnect(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := newConnectedClient(t, mock)
	client.Disconnect()

	if client.IsConnected() {
		t.Error("client should be disconnected")
	}

	if client.State().Connected {
		t.Error("state should report disconnected")
	}
}

func TestStartCapture_SendsWindowAndToken(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := newConnectedClient(t, mock)
	defer client.Disconnect()

	if err := client.StartCapture("win-1", "tok-abc"); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if reqs[0].RequestType != "StartCapture" {
		t.Errorf("request type = %s, want StartCapture", reqs[0].RequestType)
	}
	if got, _ := reqs[0].RequestData["windowId"].(string); got != "win-1" {
		t.Errorf("windowId = %q, want win-1", got)
	}
	if got, _ := reqs[0].RequestData["uploadToken"].(string); got != "tok-abc" {
		t.Errorf("uploadToken = %q, want tok-abc", got)
	}
}

func TestStopCapture(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := newConnectedClient(t, mock)
	defer client.Disconnect()

	if err := client.StopCapture("win-1"); err != nil {
		t.Fatalf("StopCapture failed: %v", err)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 || reqs[0].RequestType != "StopCapture" {
		t.Fatalf("expected a single StopCapture request, got %+v", reqs)
	}
}

func TestStartCapture_Refused(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := newConnectedClient(t, mock)
	defer client.Disconnect()

	mock.SetFailureMode(testutil.ModeRefuse)

	err := client.StartCapture("win-1", "tok-abc")
	if err == nil {
		t.Fatal("StartCapture should fail when engine refuses")
	}
}

func TestStartCapture_NotConnected(t *testing.T) {
	client := NewClient("ws://localhost:4455", "")
	if err := client.StartCapture("win-1", "tok"); err == nil {
		t.Error("StartCapture should fail when not connected")
	}
}

func TestEventDispatch_MeetingDetected(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := NewClient(mock.URL(), "")
	client.SetReconnectEnabled(false)

	events := make(chan MeetingEvent, 1)
	client.OnMeetingDetected(func(e MeetingEvent) {
		events <- e
	})

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	if err := mock.EmitMeetingDetected("win-7", "zoom", "Weekly Sync", "https://zoom.us/j/123"); err != nil {
		t.Fatalf("EmitMeetingDetected failed: %v", err)
	}

	select {
	case e := <-events:
		if e.SourceID != "win-7" {
			t.Errorf("SourceID = %s, want win-7", e.SourceID)
		}
		if e.Platform != "zoom" {
			t.Errorf("Platform = %s, want zoom", e.Platform)
		}
		if e.Title != "Weekly Sync" {
			t.Errorf("Title = %s, want Weekly Sync", e.Title)
		}
		if e.MeetingURL != "https://zoom.us/j/123" {
			t.Errorf("MeetingURL = %s, want https://zoom.us/j/123", e.MeetingURL)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for MeetingDetected event")
	}
}

func TestEventDispatch_RecordingEnded(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := NewClient(mock.URL(), "")
	client.SetReconnectEnabled(false)

	events := make(chan RecordingEndedEvent, 1)
	client.OnRecordingEnded(func(e RecordingEndedEvent) {
		events <- e
	})

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	if err := mock.EmitRecordingEnded("win-7", "meet", "Standup"); err != nil {
		t.Fatalf("EmitRecordingEnded failed: %v", err)
	}

	select {
	case e := <-events:
		if e.SourceID != "win-7" || e.Platform != "meet" || e.Title != "Standup" {
			t.Errorf("unexpected event: %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RecordingEnded event")
	}
}

func TestEventDispatch_Realtime(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("mock engine failed to start: %v", err)
	}
	defer func() { _ = mock.Stop() }()

	client := NewClient(mock.URL(), "")
	client.SetReconnectEnabled(false)

	events := make(chan RealtimeEvent, 1)
	client.OnRealtime(func(e RealtimeEvent) {
		events <- e
	})

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"words": []map[string]interface{}{
				{"text": "hello"},
				{"text": "world"},
			},
			"participant": map[string]interface{}{"name": "Alice"},
		},
	}
	if err := mock.EmitRealtime("transcript.data", "up-1", payload); err != nil {
		t.Fatalf("EmitRealtime failed: %v", err)
	}

	select {
	case e := <-events:
		if e.Kind != "transcript.data" {
			t.Errorf("Kind = %s, want transcript.data", e.Kind)
		}
		if e.UploadID != "up-1" {
			t.Errorf("UploadID = %s, want up-1", e.UploadID)
		}
		data, ok := e.TranscriptData()
		if !ok {
			t.Fatal("TranscriptData should decode")
		}
		if data.Participant.Name != "Alice" {
			t.Errorf("participant = %s, want Alice", data.Participant.Name)
		}
		got := data.WordTexts()
		if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
			t.Errorf("words = %v, want [hello world]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for realtime event")
	}
}

func TestRealtimeEvent_TranscriptData(t *testing.T) {
	raw := json.RawMessage(`{"data":{"words":[{"text":"hi"}],"participant":{"name":"Bob"}}}`)

	evt := RealtimeEvent{Kind: RealtimeTranscriptData, Data: raw}
	data, ok := evt.TranscriptData()
	if !ok {
		t.Fatal("expected transcript data to decode")
	}
	if data.Participant.Name != "Bob" {
		t.Errorf("participant = %s, want Bob", data.Participant.Name)
	}

	other := RealtimeEvent{Kind: "participant_events.join", Data: raw}
	if _, ok := other.TranscriptData(); ok {
		t.Error("non-transcript kinds should not decode as transcript data")
	}

	empty := RealtimeEvent{Kind: RealtimeTranscriptData}
	if _, ok := empty.TranscriptData(); ok {
		t.Error("empty payload should not decode")
	}
}

func TestPermissions(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("failed to start mock engine: %v", err)
	}
	defer mock.Stop()

	mock.QueueResponse("GetPermissions", map[string]interface{}{
		"op": 7,
		"d": map[string]interface{}{
			"requestType": "GetPermissions",
			"requestStatus": map[string]interface{}{
				"result": true,
				"code":   100,
			},
			"responseData": map[string]interface{}{
				"permissions": []map[string]interface{}{
					{"name": "screen_capture", "granted": true},
					{"name": "microphone", "granted": false},
				},
			},
		},
	})

	client := newConnectedClient(t, mock)
	defer client.Disconnect()

	perms, err := client.Permissions()
	if err != nil {
		t.Fatalf("Permissions failed: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("got %d permissions, want 2", len(perms))
	}
	if perms[0].Name != "screen_capture" || !perms[0].Granted {
		t.Errorf("perms[0] = %+v, want granted screen_capture", perms[0])
	}
	if perms[1].Name != "microphone" || perms[1].Granted {
		t.Errorf("perms[1] = %+v, want ungranted microphone", perms[1])
	}
}

func TestRequestPermission(t *testing.T) {
	mock := testutil.NewMockEngine()
	if err := mock.Start(); err != nil {
		t.Fatalf("failed to start mock engine: %v", err)
	}
	defer mock.Stop()

	client := newConnectedClient(t, mock)
	defer client.Disconnect()

	if err := client.RequestPermission("microphone"); err != nil {
		t.Fatalf("RequestPermission failed: %v", err)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 || reqs[0].RequestType != "RequestPermission" {
		t.Fatalf("requests = %+v, want one RequestPermission", reqs)
	}
	if reqs[0].RequestData["name"] != "microphone" {
		t.Errorf("name = %v, want microphone", reqs[0].RequestData["name"])
	}
}

func TestConnect_RetriesAfterFailedInitialDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve an address: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client := NewClient("ws://"+addr, "https://us-west-2.recall.ai/api/v1")
	client.reconnectDelay = 50 * time.Millisecond
	defer client.Disconnect()

	if err := client.Connect(); err == nil {
		t.Fatal("Connect should fail while the engine is down")
	}

	// Bring the engine up at the address the client keeps dialing.
	mock := testutil.NewMockEngine()
	if err := mock.StartAt(addr); err != nil {
		t.Fatalf("failed to start mock engine: %v", err)
	}
	defer mock.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for !client.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatal("client never retried after failed initial Connect")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
