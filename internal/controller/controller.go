// Package controller owns the session lifecycle: it reacts to capture engine
// events, drives the remote recording service, and keeps the registry,
// transcript buffers, and durable stores consistent with each other.
package controller

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/kilroy-kilroy/Call-Recorder/internal/diaglog"
	"github.com/kilroy-kilroy/Call-Recorder/internal/history"
	"github.com/kilroy-kilroy/Call-Recorder/internal/recall"
	"github.com/kilroy-kilroy/Call-Recorder/internal/session"
	"github.com/kilroy-kilroy/Call-Recorder/internal/settings"
	"github.com/kilroy-kilroy/Call-Recorder/internal/transcript"
)

var (
	// ErrAPIKeyMissing is returned when an operation needs the remote API but
	// no key has been configured. There is no default credential.
	ErrAPIKeyMissing = errors.New("API key not configured")

	// ErrStillProcessing is returned when the service has not finished
	// producing a transcript or media for a recording yet.
	ErrStillProcessing = errors.New("recording is still processing")
)

// CaptureEngine is the slice of the engine client the controller drives.
type CaptureEngine interface {
	StartCapture(sourceID, uploadToken string) error
	StopCapture(sourceID string) error
}

// Notifier receives presentation events. Implementations must not block.
type Notifier interface {
	BroadcastMeetingDetected(sourceID, platform, title, meetingURL string)
	BroadcastMeetingUpdated(sourceID, platform, title, meetingURL string)
	BroadcastRecordingStarted(sourceID, uploadID, platform, title string)
	BroadcastRecordingEnded(sourceID, uploadID, platform, title string)
	BroadcastRealtime(kind, uploadID string, data json.RawMessage)
	BroadcastSDKError(message string)
}

// Options wires a Controller's collaborators. APIBaseURL overrides the
// region-derived service host and exists for tests.
type Options struct {
	Settings   *settings.Store
	History    *history.Store
	Cache      *transcript.Cache
	Engine     CaptureEngine
	Notifier   Notifier
	Logger     *diaglog.Logger
	APIBaseURL string
}

// Controller coordinates the recording lifecycle. The registry and aggregator
// are owned here: engine events and user commands funnel through the
// controller, which is the only writer to either.
type Controller struct {
	settings *settings.Store
	history  *history.Store
	cache    *transcript.Cache
	registry *session.Registry
	agg      *transcript.Aggregator
	engine   CaptureEngine
	notifier Notifier
	logger   *diaglog.Logger

	apiBaseURL string

	apiMu sync.Mutex
	api   *recall.Client
}

// New creates a Controller. Logger may be nil; diagnostics are then dropped.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = diaglog.NewNoOp()
	}
	return &Controller{
		settings:   opts.Settings,
		history:    opts.History,
		cache:      opts.Cache,
		registry:   session.NewRegistry(),
		agg:        transcript.NewAggregator(),
		engine:     opts.Engine,
		notifier:   opts.Notifier,
		logger:     logger,
		apiBaseURL: opts.APIBaseURL,
	}
}

// ActiveSessions returns a snapshot of the sessions currently tracked.
func (c *Controller) ActiveSessions() []session.Session {
	return c.registry.Active()
}

// getAPI returns a client for the configured credentials. The cached client
// is reused as long as the key and region it was built with are unchanged, so
// its connection pool survives across calls.
func (c *Controller) getAPI() (*recall.Client, error) {
	cfg := c.settings.Load()
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}

	fresh := recall.NewClient(recall.Config{
		APIKey:  cfg.APIKey,
		Region:  cfg.Region,
		BaseURL: c.apiBaseURL,
	})

	c.apiMu.Lock()
	defer c.apiMu.Unlock()
	if c.api != nil && c.api.APIKey() == fresh.APIKey() && c.api.Host() == fresh.Host() {
		return c.api, nil
	}
	c.api = fresh
	return c.api, nil
}

// invalidateAPI drops the cached client; the next call rebuilds it from the
// stored settings.
func (c *Controller) invalidateAPI() {
	c.apiMu.Lock()
	c.api = nil
	c.apiMu.Unlock()
}

func (c *Controller) notifySDKError(err error) {
	if c.notifier != nil {
		c.notifier.BroadcastSDKError(err.Error())
	}
	log.Printf("[CONTROLLER] SDK error: %v", err)
}
