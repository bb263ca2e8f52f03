package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kilroy-kilroy/Call-Recorder/internal/api"
	"github.com/kilroy-kilroy/Call-Recorder/internal/controller"
	"github.com/kilroy-kilroy/Call-Recorder/internal/diaglog"
	"github.com/kilroy-kilroy/Call-Recorder/internal/engine"
	"github.com/kilroy-kilroy/Call-Recorder/internal/history"
	"github.com/kilroy-kilroy/Call-Recorder/internal/ipc"
	"github.com/kilroy-kilroy/Call-Recorder/internal/notify"
	"github.com/kilroy-kilroy/Call-Recorder/internal/pidfile"
	"github.com/kilroy-kilroy/Call-Recorder/internal/recall"
	"github.com/kilroy-kilroy/Call-Recorder/internal/settings"
	"github.com/kilroy-kilroy/Call-Recorder/internal/transcript"
)

const (
	defaultEngineURL = "ws://localhost:4545"
	defaultAPIAddr   = "127.0.0.1:8422"
	logPrefix        = "[callrec-core]"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

func main() {
	// Recover from any panics and log them
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in callrec-core: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	// Initialize logging
	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting Callrec Core v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Printf("Timestamp: %s", time.Now().Format(time.RFC3339))
	outLog.Println("===========================================")

	// Check for duplicate instances
	pidFilePath := pidfile.Path("callrec-core")
	outLog.Printf("Checking PID file: %s", pidFilePath)
	pf, err := pidfile.New(pidFilePath)
	if err != nil {
		errLog.Printf("Failed to create PID file: %v", err)
		errLog.Println("Another instance of callrec-core may already be running.")
		errLog.Printf("If you're sure no other instance is running, remove: %s", pidFilePath)
		os.Exit(1)
	}
	defer func() {
		outLog.Println("Cleaning up before exit...")
		if err := pf.Remove(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()
	outLog.Printf("PID file created: %s (PID %d)", pidFilePath, os.Getpid())

	// Diagnostic log (CALLREC_DEBUG=true)
	logPath := os.Getenv("CALLREC_LOG_PATH")
	if logPath == "" {
		logPath = "/tmp/callrec-debug.log"
	}
	diagLogger, diagErr := diaglog.New(logPath)
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log at %s: %v (continuing)", logPath, diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()

	// Durable stores
	home := os.Getenv("HOME")
	configDir := filepath.Join(home, ".config", "callrec")
	dataDir := filepath.Join(home, ".local", "share", "callrec")
	outLog.Printf("[STARTUP] Config dir: %s, data dir: %s", configDir, dataDir)

	settingsStore := settings.NewStore(configDir)
	historyStore := history.NewStore(dataDir)
	transcriptCache := transcript.NewCache(filepath.Join(dataDir, "transcripts"))

	cfg := settingsStore.Load()
	if cfg.APIKey == "" {
		outLog.Println("[STARTUP] No API key configured - recording is disabled until one is set")
	}

	// Connect to the capture engine
	engineURL := os.Getenv("CALLREC_ENGINE_URL")
	if engineURL == "" {
		engineURL = defaultEngineURL
	}
	outLog.Println("[STARTUP] Connecting to capture engine at " + engineURL + "...")
	engineClient := engine.NewClient(engineURL, recall.APIURL(cfg.Region))
	engineClient.SetLogger(diagLogger)

	// Presentation hub + controller
	hub := notify.NewHub()
	ctrl := controller.New(controller.Options{
		Settings: settingsStore,
		History:  historyStore,
		Cache:    transcriptCache,
		Engine:   engineClient,
		Notifier: hub,
		Logger:   diagLogger,
	})

	// Engine events feed the controller; handlers run on the engine read
	// loop, so per-source ordering is preserved.
	engineClient.OnMeetingDetected(ctrl.HandleMeetingDetected)
	engineClient.OnMeetingUpdated(ctrl.HandleMeetingUpdated)
	engineClient.OnRecordingEnded(ctrl.HandleRecordingEnded)
	engineClient.OnRealtime(ctrl.HandleRealtimeEvent)
	engineClient.OnDisconnected(func() {
		errLog.Println("[EVENT] Capture engine disconnected - will attempt reconnection")
	})

	if err := engineClient.Connect(); err != nil {
		// The client keeps retrying in the background; sessions start once
		// the engine comes up.
		errLog.Printf("[STARTUP] Capture engine not reachable yet: %v", err)
	} else {
		outLog.Printf("[STARTUP] Connected to capture engine (version %s)", engineClient.State().EngineVersion)
	}
	defer func() {
		outLog.Println("[SHUTDOWN] Disconnecting from capture engine...")
		engineClient.Disconnect()
	}()

	// Control API
	apiAddr := os.Getenv("CALLREC_API_ADDR")
	if apiAddr == "" {
		apiAddr = defaultAPIAddr
	}
	downloadDir := filepath.Join(home, "Downloads")
	go func() {
		if err := api.Serve(apiAddr, ctrl, hub, downloadDir, api.StatusHooks{
			EngineConnected: engineClient.IsConnected,
		}); err != nil {
			errLog.Printf("API server exited: %v", err)
		}
	}()

	// Write initial status
	outLog.Println("[STARTUP] Writing initial status...")
	if err := writeStatus(ctrl, engineClient, settingsStore); err != nil {
		errLog.Printf("Failed to write initial status: %v", err)
	}

	// Start command file watcher
	outLog.Println("[STARTUP] Starting command file watcher...")
	quitChan := make(chan struct{}, 1)
	go watchCommands(ctrl, quitChan)

	// Periodic status writes
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	outLog.Println("[STARTUP] Signal handlers registered (SIGINT, SIGTERM)")

	outLog.Println("===========================================")
	outLog.Println("[RUNNING] Callrec Core is running")

	for {
		select {
		case <-ticker.C:
			if err := writeStatus(ctrl, engineClient, settingsStore); err != nil {
				errLog.Printf("Failed to write status: %v", err)
			}

		case <-quitChan:
			outLog.Println("[SHUTDOWN] Quit command received")
			shutdown(ctrl)
			return

		case <-sigChan:
			outLog.Println("===========================================")
			outLog.Printf("[SHUTDOWN] Received shutdown signal at %s", time.Now().Format(time.RFC3339))
			shutdown(ctrl)
			outLog.Println("[SHUTDOWN] Shutting down gracefully")
			outLog.Println("===========================================")
			return
		}
	}
}

// shutdown requests a stop for every active capture so uploads finalize
// before the daemon exits.
func shutdown(ctrl *controller.Controller) {
	for _, s := range ctrl.ActiveSessions() {
		outLog.Printf("[SHUTDOWN] Stopping active capture for %s...", s.SourceID)
		if err := ctrl.StopRecording(s.SourceID); err != nil {
			errLog.Printf("[SHUTDOWN] Failed to stop capture for %s: %v", s.SourceID, err)
		}
	}
}

// writeStatus updates the status.json file
func writeStatus(ctrl *controller.Controller, engineClient *engine.Client, settingsStore *settings.Store) error {
	state := engineClient.State()

	sessions := ctrl.ActiveSessions()
	active := make([]ipc.ActiveSession, 0, len(sessions))
	for _, s := range sessions {
		if !s.Active() {
			continue
		}
		active = append(active, ipc.ActiveSession{
			SourceID:  s.SourceID,
			Platform:  s.Platform,
			Title:     s.Title,
			UploadID:  s.UploadID,
			StartedAt: s.StartedAt,
		})
	}

	status := ipc.StatusSnapshot{
		EngineConnected: state.Connected,
		EngineVersion:   state.EngineVersion,
		ActiveSessions:  active,
		AutoRecord:      settingsStore.Load().AutoRecord,
		Timestamp:       time.Now(),
	}

	return ipc.WriteStatus(&status)
}

// watchCommands monitors cmd.txt for manual control commands
func watchCommands(ctrl *controller.Controller, quitChan chan<- struct{}) {
	cmdPath := filepath.Join(ipc.CacheDir(), "cmd.txt")
	cmdDir := filepath.Dir(cmdPath)

	// Try to use fsnotify for efficient file watching
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		watchCommandsWithPolling(cmdPath, ctrl, quitChan)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			errLog.Printf("Failed to close watcher: %v", err)
		}
	}()

	if err := watcher.Add(cmdDir); err != nil {
		errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		watchCommandsWithPolling(cmdPath, ctrl, quitChan)
		return
	}

	outLog.Println("Command watcher started (using fsnotify)")

	// Add fallback polling ticker in case fsnotify fails
	pollTicker := time.NewTicker(1 * time.Second)
	defer pollTicker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				outLog.Println("fsnotify watcher closed, switching to polling")
				watchCommandsWithPolling(cmdPath, ctrl, quitChan)
				return
			}

			if event.Name == cmdPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				// Small delay to ensure write is complete
				time.Sleep(50 * time.Millisecond)

				cmd, err := ipc.ReadCommand()
				if err != nil || cmd.Command == "" {
					continue
				}

				handleCommand(cmd, ctrl, quitChan)
				lastCheckTime = time.Now()
			}

		case <-pollTicker.C:
			// Fallback polling: check for commands if file was modified since last check
			if fileInfo, err := os.Stat(cmdPath); err == nil {
				if fileInfo.ModTime().After(lastCheckTime) {
					time.Sleep(50 * time.Millisecond) // Ensure write is complete

					cmd, err := ipc.ReadCommand()
					if err == nil && cmd.Command != "" {
						handleCommand(cmd, ctrl, quitChan)
						lastCheckTime = time.Now()
					}
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				outLog.Println("fsnotify error channel closed, switching to polling")
				watchCommandsWithPolling(cmdPath, ctrl, quitChan)
				return
			}
			errLog.Printf("File watcher error: %v", err)
		}
	}
}

// watchCommandsWithPolling is a pure polling-based fallback for command monitoring
func watchCommandsWithPolling(cmdPath string, ctrl *controller.Controller, quitChan chan<- struct{}) {
	outLog.Println("Command watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastCheckTime := time.Now()

	for range ticker.C {
		// Check if file was modified since last check
		fileInfo, err := os.Stat(cmdPath)
		if err != nil {
			continue // File doesn't exist yet, keep polling
		}

		if fileInfo.ModTime().After(lastCheckTime) {
			time.Sleep(50 * time.Millisecond) // Ensure write is complete

			cmd, err := ipc.ReadCommand()
			if err == nil && cmd.Command != "" {
				handleCommand(cmd, ctrl, quitChan)
			}
			lastCheckTime = time.Now()
		}
	}
}

// handleCommand processes manual control commands
func handleCommand(cmd ipc.ParsedCommand, ctrl *controller.Controller, quitChan chan<- struct{}) {
	outLog.Printf("Received command: %s %s", cmd.Command, cmd.SourceID)

	switch cmd.Command {
	case ipc.CmdStart:
		if cmd.SourceID == "" {
			errLog.Println("start command requires a source id")
			return
		}
		if err := ctrl.StartRecording(engine.MeetingEvent{
			SourceID: cmd.SourceID,
			Title:    "Manual",
		}); err != nil {
			errLog.Printf("Failed to start recording: %v", err)
			return
		}
		outLog.Printf("Recording started for %s", cmd.SourceID)

	case ipc.CmdStop:
		targets := []string{cmd.SourceID}
		if cmd.SourceID == "" {
			targets = targets[:0]
			for _, s := range ctrl.ActiveSessions() {
				targets = append(targets, s.SourceID)
			}
		}
		for _, sourceID := range targets {
			if err := ctrl.StopRecording(sourceID); err != nil {
				errLog.Printf("Failed to stop recording for %s: %v", sourceID, err)
			} else {
				outLog.Printf("Stop requested for %s", sourceID)
			}
		}

	case ipc.CmdQuit:
		outLog.Println("Quit command received - shutting down")
		select {
		case quitChan <- struct{}{}:
		default:
		}

	default:
		errLog.Printf("Unknown command: %s", cmd.Command)
	}
}

// initLogging sets up log files with rotation support
func initLogging() error {
	logDir := "/tmp"

	// Rotate logs if they exceed 10MB
	outLogPath := filepath.Join(logDir, "callrec-core.out.log")
	errLogPath := filepath.Join(logDir, "callrec-core.err.log")

	if err := rotateLogIfNeeded(outLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}

	if err := rotateLogIfNeeded(errLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)

	return nil
}

// rotateLogIfNeeded rotates a log file if it exceeds maxSize bytes
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil // Log doesn't exist yet
	}
	if err != nil {
		return err
	}

	if info.Size() < maxSize {
		return nil // Log is under size limit
	}

	// Rotate: rename current log to .old, removing previous .old
	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}

	if err := os.Rename(logPath, oldPath); err != nil {
		return err
	}

	return nil
}
