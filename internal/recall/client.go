// Package recall is a thin client for the remote recording service REST API.
// It covers only the endpoints the daemon needs: SDK upload lifecycle,
// recording metadata, transcripts, and media download.
package recall

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Config configures a Client. BaseURL overrides the region-derived host and
// exists for tests; production callers set APIKey and Region only.
type Config struct {
	APIKey         string
	Region         string
	BaseURL        string
	TimeoutSeconds int // default 30
}

// Client issues authenticated requests against one region host. It performs
// no retries: retry policy is a caller concern.
type Client struct {
	apiKey  string
	host    string
	baseURL string
	client  *http.Client
}

// APIError is a non-2xx response, carrying the status code and response body.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// APIURL returns the versioned API base URL for a region. The capture engine
// is pointed at the same URL during its handshake.
func APIURL(region string) string {
	if region == "" {
		region = "us-west-2"
	}
	return "https://" + region + ".recall.ai/api/v1"
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Region == "" {
		cfg.Region = "us-west-2"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	host := cfg.Region + ".recall.ai"
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + host
	}
	return &Client{
		apiKey:  cfg.APIKey,
		host:    host,
		baseURL: baseURL + "/api/v1",
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// APIKey returns the credential the client was built with. Used together
// with Host for identity-comparison reuse of a cached client.
func (c *Client) APIKey() string { return c.apiKey }

// Host returns the region-derived host the client targets.
func (c *Client) Host() string { return c.host }

// Upload is a Desktop SDK upload as returned by the service. UploadToken
// authorizes the capture engine to write to this upload and must be treated
// as a secret.
type Upload struct {
	ID          string `json:"id"`
	UploadToken string `json:"upload_token"`
	RecordingID string `json:"recording_id"`
	Status      struct {
		Code string `json:"code"`
	} `json:"status"`
}

// UploadList is one page of SDK uploads.
type UploadList struct {
	Next    string   `json:"next"`
	Results []Upload `json:"results"`
}

// Recording holds the media shortcuts for a processed recording.
type Recording struct {
	ID             string `json:"id"`
	MediaShortcuts struct {
		VideoMixed struct {
			Data struct {
				DownloadURL string `json:"download_url"`
			} `json:"data"`
		} `json:"video_mixed"`
	} `json:"media_shortcuts"`
}

// TranscriptSegment is one segment of a service-side transcript. Speaker
// attribution appears either as a plain name or a participant object, and
// text either as word tokens or a flat string, depending on the provider.
type TranscriptSegment struct {
	Speaker     string `json:"speaker"`
	Participant struct {
		Name string `json:"name"`
	} `json:"participant"`
	Words []struct {
		Text string `json:"text"`
	} `json:"words"`
	Text string `json:"text"`
}

// CreateSDKUpload creates a new upload slot, returning its id and capture
// token. recordingConfig is passed through verbatim as recording_config.
func (c *Client) CreateSDKUpload(recordingConfig map[string]any) (*Upload, error) {
	body := map[string]any{}
	if recordingConfig != nil {
		body["recording_config"] = recordingConfig
	}
	var upload Upload
	if err := c.do(http.MethodPost, "/sdk_upload/", body, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// GetSDKUpload retrieves one upload by id.
func (c *Client) GetSDKUpload(uploadID string) (*Upload, error) {
	var upload Upload
	if err := c.do(http.MethodGet, "/sdk_upload/"+url.PathEscape(uploadID)+"/", nil, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// ListSDKUploads retrieves one page of uploads. cursor selects a page; pass
// an empty cursor for the first.
func (c *Client) ListSDKUploads(cursor string) (*UploadList, error) {
	path := "/sdk_upload/"
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}
	var list UploadList
	if err := c.do(http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetRecording retrieves recording metadata, including media download URLs.
func (c *Client) GetRecording(recordingID string) (*Recording, error) {
	var rec Recording
	if err := c.do(http.MethodGet, "/recording/"+url.PathEscape(recordingID)+"/", nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetTranscript retrieves the processed transcript for a recording.
func (c *Client) GetTranscript(recordingID string) ([]TranscriptSegment, error) {
	var segments []TranscriptSegment
	if err := c.do(http.MethodGet, "/recording/"+url.PathEscape(recordingID)+"/transcript/", nil, &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// DownloadFile streams the media at downloadURL to destPath. Redirects are
// followed by the underlying client; the URL is pre-signed so no auth header
// is attached. The file is written via a temp path and renamed on success.
func (c *Client) DownloadFile(downloadURL, destPath string) error {
	resp, err := c.client.Get(downloadURL)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, "download-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("writing download: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // prevent defer cleanup

	return os.Rename(tmpPath, destPath)
}

// do issues one request and decodes a 2xx JSON response into out (when out is
// non-nil). Non-2xx responses become *APIError.
func (c *Client) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
