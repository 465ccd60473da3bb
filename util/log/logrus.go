package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/meshboard/meshboard/common"
)

const (
	JsonFormat = "json"
	TextFormat = "text"
)

// NewWithCurrentConfig creates a logrus logger configured from the current
// environment.
func NewWithCurrentConfig() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(CreateFormatter(os.Getenv(common.EnvLogFormat)))
	l.SetLevel(createLogLevel())
	return l
}

// CreateFormatter creates a logrus formatter by string
func CreateFormatter(logFormat string) logrus.Formatter {
	var formatType logrus.Formatter
	switch strings.ToLower(logFormat) {
	case JsonFormat:
		formatType = &logrus.JSONFormatter{}
	case TextFormat:
		formatType = &logrus.TextFormatter{FullTimestamp: true}
	default:
		formatType = &logrus.TextFormatter{FullTimestamp: true}
	}
	return formatType
}

// SetLogFormat applies the given format string to the standard logger.
func SetLogFormat(logFormat string) {
	logrus.SetFormatter(CreateFormatter(logFormat))
}

// SetLogLevel parses and applies the given level to the standard logger,
// falling back to info on unknown levels.
func SetLogLevel(logLevel string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func createLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(os.Getenv(common.EnvLogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	return level
}
