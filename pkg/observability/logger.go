package observability

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger creates the service logger. Format is "json" or "text"; level
// is any logrus level name. Unknown values fall back to JSON at info.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}
