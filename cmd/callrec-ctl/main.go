package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kilroy-kilroy/Call-Recorder/internal/ipc"
	"github.com/kilroy-kilroy/Call-Recorder/internal/transcript"
)

const defaultAPIAddr = "127.0.0.1:8422"

func usage() {
	fmt.Fprintln(os.Stderr, `usage: callrec-ctl <command> [args]

Daemon control (via command file):
  start <sourceId>   start recording a meeting window
  stop [sourceId]    stop recording (all sessions when no id given)
  quit               shut the daemon down

Queries (via local API):
  status             show daemon status
  list               list recording history
  transcript <uploadId> [file]   print a transcript, or save it as text
  download <uploadId>     download the mixed video`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "start":
		if len(os.Args) < 3 {
			usage()
		}
		err = ipc.WriteCommand(ipc.CmdStart, os.Args[2])
		if err == nil {
			fmt.Printf("start requested for %s\n", os.Args[2])
		}

	case "stop":
		sourceID := ""
		if len(os.Args) > 2 {
			sourceID = os.Args[2]
		}
		err = ipc.WriteCommand(ipc.CmdStop, sourceID)
		if err == nil {
			fmt.Println("stop requested")
		}

	case "quit":
		err = ipc.WriteCommand(ipc.CmdQuit, "")
		if err == nil {
			fmt.Println("quit requested")
		}

	case "status":
		err = showStatus()

	case "list":
		err = apiGet("/api/recordings", printRecordings)

	case "transcript":
		if len(os.Args) < 3 {
			usage()
		}
		render := printTranscript
		if len(os.Args) > 3 {
			render = saveTranscript(os.Args[3])
		}
		err = apiGet("/api/recordings/"+os.Args[2]+"/transcript", render)

	case "download":
		if len(os.Args) < 3 {
			usage()
		}
		err = apiPost("/api/recordings/"+os.Args[2]+"/download", printDownload)

	default:
		usage()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// showStatus reads the daemon's status file directly; it works even when the
// API server is not up yet.
func showStatus() error {
	status, err := ipc.ReadStatus()
	if err != nil {
		return fmt.Errorf("no status available (is callrec-core running?): %w", err)
	}

	age := time.Since(status.Timestamp).Round(time.Second)
	fmt.Printf("engine:      %s", connState(status.EngineConnected))
	if status.EngineVersion != "" {
		fmt.Printf(" (version %s)", status.EngineVersion)
	}
	fmt.Println()
	fmt.Printf("auto-record: %v\n", status.AutoRecord)
	fmt.Printf("updated:     %s ago\n", age)

	if len(status.ActiveSessions) == 0 {
		fmt.Println("sessions:    none")
		return nil
	}
	fmt.Println("sessions:")
	for _, s := range status.ActiveSessions {
		fmt.Printf("  %s  %s  %q  upload=%s  since %s\n",
			s.SourceID, s.Platform, s.Title, s.UploadID,
			s.StartedAt.Local().Format("15:04:05"))
	}
	return nil
}

func connState(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}

func apiAddr() string {
	if addr := os.Getenv("CALLREC_API_ADDR"); addr != "" {
		return addr
	}
	return defaultAPIAddr
}

func apiGet(path string, render func([]byte) error) error {
	resp, err := http.Get("http://" + apiAddr() + path)
	if err != nil {
		return fmt.Errorf("is callrec-core running? %w", err)
	}
	defer resp.Body.Close()
	return renderResponse(resp, render)
}

func apiPost(path string, render func([]byte) error) error {
	resp, err := http.Post("http://"+apiAddr()+path, "application/json", strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("is callrec-core running? %w", err)
	}
	defer resp.Body.Close()
	return renderResponse(resp, render)
}

func renderResponse(resp *http.Response, render func([]byte) error) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusAccepted {
		fmt.Println("still processing, try again later")
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			return fmt.Errorf("%s", payload.Error)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return render(body)
}

func printRecordings(body []byte) error {
	var recordings []struct {
		UploadID string    `json:"uploadId"`
		Platform string    `json:"platform"`
		Title    string    `json:"title"`
		EndedAt  time.Time `json:"endedAt"`
		Status   string    `json:"status"`
	}
	if err := json.Unmarshal(body, &recordings); err != nil {
		return err
	}

	if len(recordings) == 0 {
		fmt.Println("no recordings")
		return nil
	}
	for _, r := range recordings {
		fmt.Printf("%s  %-10s  %-10s  %s  %q\n",
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			r.Platform, r.Status, r.UploadID, r.Title)
	}
	return nil
}

func printTranscript(body []byte) error {
	var segments []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(body, &segments); err != nil {
		return err
	}

	for _, s := range segments {
		fmt.Printf("%s: %s\n", s.Speaker, s.Text)
	}
	return nil
}

func saveTranscript(path string) func([]byte) error {
	return func(body []byte) error {
		var segments []transcript.Segment
		if err := json.Unmarshal(body, &segments); err != nil {
			return err
		}
		if err := transcript.WriteText(path, segments); err != nil {
			return err
		}
		fmt.Printf("saved to %s\n", path)
		return nil
	}
}

func printDownload(body []byte) error {
	var payload struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return err
	}
	fmt.Printf("saved to %s\n", payload.Path)
	return nil
}
