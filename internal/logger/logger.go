package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a JSON logger tagged with the service name.
// level falls back to LOG_LEVEL and then to info.
func New(service, level string) *logrus.Entry {
	return NewWithOutput(service, level, os.Stdout)
}

// NewWithOutput is New with an explicit sink.
func NewWithOutput(service, level string, out io.Writer) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(out)

	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	return log.WithField("service", service)
}

// Discard is a logger for tests and tools that must stay quiet.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}
