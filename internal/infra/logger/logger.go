package logger

import (
	"io"
	"os"
	"strings"

	"late_report_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// Log is the global logger instance
var Log = logrus.New()

// Init configures the global logger: level from LOG_LEVEL, JSON output in
// production and staging, human-readable text elsewhere.
func Init(cfg *config.AppConfig) {
	configure(Log, os.Stdout, cfg.LogLevel, cfg.Environment)

	Log.WithFields(logrus.Fields{
		"level":       Log.GetLevel().String(),
		"environment": cfg.Environment,
	}).Info("Logger initialized")
}

func configure(l *logrus.Logger, out io.Writer, levelName, environment string) {
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		l.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", levelName, err)
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(environment) {
	case "production", "staging":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
}

// Component returns an entry tagged with the name of the subsystem logging through it.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
