package codecontinue

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

// LogLevel returns the level for the given verbosity: debug when enabled,
// warnings and errors otherwise.
func LogLevel(debug bool) log.Level {
	if debug {
		return log.DebugLevel
	}
	return log.WarnLevel
}

// SetupLogging installs a charm logger writing to w as the slog default
// and returns it so the level can be changed later.
func SetupLogging(w io.Writer, debug bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "codecontinue",
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
		Level:           LogLevel(debug),
	})
	slog.SetDefault(slog.New(logger))
	return logger
}
