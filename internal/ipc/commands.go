package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command represents user commands from tooling to the daemon
type Command string

const (
	CmdStart Command = "start" // Start recording a source: "start <sourceId>"
	CmdStop  Command = "stop"  // Stop recording: "stop [sourceId]"
	CmdQuit  Command = "quit"  // Shutdown daemon
)

// ParsedCommand is a command plus its optional argument.
type ParsedCommand struct {
	Command  Command
	SourceID string
}

// WriteCommand writes a command line to ~/.cache/callrec/cmd.txt
func WriteCommand(cmd Command, sourceID string) error {
	cacheDir := CacheDir()
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return err
	}

	line := string(cmd)
	if sourceID != "" {
		line += " " + sourceID
	}

	cmdPath := filepath.Join(cacheDir, "cmd.txt")
	return os.WriteFile(cmdPath, []byte(line), 0644)
}

// ReadCommand reads and clears ~/.cache/callrec/cmd.txt
// Returns a zero ParsedCommand if no command is pending.
func ReadCommand() (ParsedCommand, error) {
	cmdPath := filepath.Join(CacheDir(), "cmd.txt")

	data, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ParsedCommand{}, nil // No command pending
		}
		return ParsedCommand{}, err
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(cmdPath, []byte(""), 0644); err != nil {
		return ParsedCommand{}, err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return ParsedCommand{}, nil // Empty file
	}

	parsed := ParsedCommand{Command: Command(fields[0])}
	if len(fields) > 1 {
		parsed.SourceID = fields[1]
	}

	switch parsed.Command {
	case CmdStart, CmdStop, CmdQuit:
		return parsed, nil
	default:
		// Invalid command - ignore it
		return ParsedCommand{}, nil
	}
}
