// Package logging builds the process logger. Output goes to stderr because
// stdout carries the MCP stdio protocol.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// Options select level and format
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Writer io.Writer
}

// New creates a logger. Unknown levels fall back to info.
func New(opts Options) *log.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	logger := &log.Logger{
		Level:      parseLevel(opts.Level),
		TimeFormat: "15:04:05.000",
	}
	if strings.EqualFold(opts.Format, "json") {
		logger.TimeFormat = ""
		logger.Writer = &log.IOWriter{Writer: w}
	} else {
		logger.Writer = &log.ConsoleWriter{
			Writer:      w,
			ColorOutput: isTerminal(w),
		}
	}
	return logger
}

func parseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && log.IsTerminal(f.Fd())
}
