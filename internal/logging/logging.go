// Package logging configures the structured logger shared by the engine,
// server, and CLI.
package logging

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

var std = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
})

// Default returns the process-wide logger. Components pull it lazily
// rather than having it threaded through every constructor, matching how
// the rest of this family of tools wires logging.
func Default() *log.Logger {
	return std
}

// Configure sets the logger's level and output format. level is one of
// "debug", "info", "warn", "error" (case-insensitive; unrecognized values
// fall back to info). json switches to structured JSON output for
// ingestion by a log pipeline; the default is the human-readable TTY
// formatter.
func Configure(level string, json bool) {
	std.SetLevel(parseLevel(level))
	if json {
		std.SetFormatter(log.JSONFormatter)
	} else {
		std.SetFormatter(log.TextFormatter)
	}
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
