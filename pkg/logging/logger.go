package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// LinePrefix marks every text log line written by the packager.
const LinePrefix = "📦 "

// NewLogger creates a new hclog logger with standard settings.
// A level of the form "json:<level>" switches to JSON output, as does
// HWPACK_JSON_LOG=1.
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	level, jsonLevel := splitLevel(level)
	jsonFormat := jsonLevel || os.Getenv("HWPACK_JSON_LOG") == "1"

	if !jsonFormat {
		output = NewPrefixWriter(LinePrefix, output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

func splitLevel(level string) (string, bool) {
	if !strings.HasPrefix(level, "json") {
		return level, false
	}
	level = strings.TrimPrefix(strings.TrimPrefix(level, "json"), ":")
	if level == "" {
		level = "info"
	}
	return level, true
}

// ValidLevel reports whether NewLogger understands level.
func ValidLevel(level string) bool {
	level, _ = splitLevel(level)
	return hclog.LevelFromString(level) != hclog.NoLevel
}

// GetLogLevel returns the configured log level from environment
func GetLogLevel() string {
	level := os.Getenv("HWPACK_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return level
}

// OrNull returns logger, or a logger that discards everything when nil.
func OrNull(logger hclog.Logger) hclog.Logger {
	if logger == nil {
		return hclog.NewNullLogger()
	}
	return logger
}
