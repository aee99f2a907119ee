package logging

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"
)

// LoadEnv reads .env files when present. Variables already set win.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			logger.WithError(err).WithField("file", f).Warn("Failed to load env file")
		}
	}
}

// SetupLogger applies LOG_LEVEL (default debug) and LOG_FORMAT (text or json).
func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger.SetFormatter(&logger.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}
