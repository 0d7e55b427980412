package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/nbrons/perp-prophet/internal/config"
)

// Logger wraps logrus.Logger with the service's standard fields and an
// optional rotating file sink.
type Logger struct {
	*logrus.Logger
	service string
	sink    io.Closer
}

// New creates a logger from the logging section of the configuration.
// When cfg.File is set, output is written to stdout and to a lumberjack
// rotated file.
func New(cfg config.LoggingConfig, service string) *Logger {
	logger := logrus.New()
	logger.SetLevel(ParseLogrusLevel(cfg.Level))

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	l := &Logger{Logger: logger, service: service}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
		l.sink = rotator
	} else {
		logger.SetOutput(os.Stdout)
	}
	return l
}

// NewStandardLogger builds a stdout JSON logger at the given level.
func NewStandardLogger(level, service string) *Logger {
	return New(config.LoggingConfig{Level: level, Format: "json"}, service)
}

// Close flushes and closes the rotating file sink, if any.
func (l *Logger) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// WithComponent creates an entry tagged with the service and component.
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"service":   l.service,
		"component": component,
	})
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version string, port int) {
	l.WithFields(logrus.Fields{
		"service": l.service,
		"version": version,
		"port":    port,
		"event":   "startup",
	}).Info("Application startup")
}

// LogShutdown logs application shutdown information
func (l *Logger) LogShutdown(reason string) {
	l.WithFields(logrus.Fields{
		"service": l.service,
		"event":   "shutdown",
		"reason":  reason,
	}).Info("Application shutdown")
}

// LogBusinessEvent logs a domain event such as a collection or an alert.
func (l *Logger) LogBusinessEvent(eventType string, details map[string]interface{}) {
	fields := logrus.Fields{
		"service":    l.service,
		"event_type": eventType,
	}
	for k, v := range details {
		fields[k] = v
	}
	l.WithFields(fields).Info("Business event")
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
