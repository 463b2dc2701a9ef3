package utils

import (
	"io"
	"path/filepath"
	"time"

	colorable "github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"github.com/snowzach/rotatefilehook"
)

// InitLogger returns a logger writing colored text to stderr and JSON lines to a
// size-rotated bookimg.log under logDir. An empty logDir disables the file hook.
func InitLogger(level string, logDir string) (*logrus.Logger, error) {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)
	log.SetOutput(colorable.NewColorableStderr())
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if logDir == "" {
		return log, nil
	}

	rotateFileHook, err := rotatefilehook.NewRotateFileHook(rotatefilehook.RotateFileConfig{
		Filename:   filepath.Join(logDir, "bookimg.log"),
		MaxSize:    16,
		MaxBackups: 3,
		MaxAge:     7,
		Level:      logrus.TraceLevel,
		Formatter: &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		},
	})
	if err != nil {
		return log, err
	}
	log.AddHook(rotateFileHook)

	return log, nil
}

// DiscardLogger is used by packages constructed without a logger.
func DiscardLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// Component returns the entry for a named component, falling back to a discard
// logger when entry is nil.
func Component(entry *logrus.Entry, name string) *logrus.Entry {
	if entry == nil {
		entry = DiscardLogger()
	}
	return entry.WithField("component", name)
}
