package engine

import (
	"encoding/json"
	"fmt"
)

// StartCapture asks the engine to begin capturing the given meeting window.
// The upload token scopes the capture to an already-created upload; the
// engine streams media and realtime events against it.
func (c *Client) StartCapture(sourceID, uploadToken string) error {
	_, err := c.sendRequest("StartCapture", map[string]interface{}{
		"windowId":    sourceID,
		"uploadToken": uploadToken,
	})
	return err
}

// StopCapture requests a stop for the given meeting window. Completion is
// asynchronous: the engine confirms by emitting RecordingEnded once the
// capture has actually wound down.
func (c *Client) StopCapture(sourceID string) error {
	_, err := c.sendRequest("StopCapture", map[string]interface{}{
		"windowId": sourceID,
	})
	return err
}

// PermissionStatus describes one OS capture permission as reported by the
// engine.
type PermissionStatus struct {
	Name    string `json:"name"`
	Granted bool   `json:"granted"`
}

// Permissions queries the engine for the current state of the OS permissions
// it needs (screen capture, microphone, accessibility).
func (c *Client) Permissions() ([]PermissionStatus, error) {
	resp, err := c.sendRequest("GetPermissions", nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		Permissions []PermissionStatus `json:"permissions"`
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse permissions: %w", err)
	}
	return data.Permissions, nil
}

// RequestPermission asks the engine to prompt the user for a named OS
// permission. The engine surfaces the system dialog; the result lands in a
// later Permissions query.
func (c *Client) RequestPermission(name string) error {
	_, err := c.sendRequest("RequestPermission", map[string]interface{}{
		"name": name,
	})
	return err
}
