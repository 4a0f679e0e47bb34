package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/charlesng35/engageflow/pkg/logger"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// ConfigureLogging initialises the global logger. An empty level means info
// and an empty format means json.
func ConfigureLogging(level, format string) error {
	opts, err := loggingOptions(level, format)
	if err != nil {
		return err
	}
	return logger.InitWithOptions(opts)
}

func loggingOptions(level, format string) (logger.Options, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = zapcore.InfoLevel.String()
	}
	if _, err := zapcore.ParseLevel(level); err != nil {
		return logger.Options{}, fmt.Errorf("log level: %w", err)
	}

	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		format = LogFormatJSON
	case LogFormatJSON, LogFormatConsole:
	default:
		return logger.Options{}, fmt.Errorf("log format %q: expected %s or %s", format, LogFormatJSON, LogFormatConsole)
	}

	return logger.Options{Level: level, Format: format}, nil
}
