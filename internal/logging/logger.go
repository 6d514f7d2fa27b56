package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// StandardLogger wraps a logrus logger with the field conventions used across the service.
type StandardLogger struct {
	logger *logrus.Logger
}

// NewLogger builds a logrus logger for the given level and environment.
// Development gets human readable text, every other environment gets JSON.
func NewLogger(logLevel string, environment string) *logrus.Logger {
	return newLogger(logLevel, environment, os.Stdout)
}

func newLogger(logLevel string, environment string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(ParseLogrusLevel(logLevel))

	if strings.EqualFold(environment, "development") {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
			},
		})
	}
	return logger
}

// NewStandardLogger creates a new standardized logger based on configuration.
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	return &StandardLogger{logger: NewLogger(logLevel, environment)}
}

// WrapLogger adapts an existing logrus logger.
func WrapLogger(logger *logrus.Logger) *StandardLogger {
	if logger == nil {
		logger = logrus.New()
	}
	return &StandardLogger{logger: logger}
}

// Logger returns the underlying *logrus.Logger.
func (l *StandardLogger) Logger() *logrus.Logger {
	return l.logger
}

// WithService creates a logger with service context.
func (l *StandardLogger) WithService(serviceName string) *logrus.Entry {
	return l.logger.WithField("service", serviceName)
}

// WithComponent creates a logger with component context.
func (l *StandardLogger) WithComponent(componentName string) *logrus.Entry {
	return l.logger.WithField("component", componentName)
}

// WithExchange creates a logger with venue context.
func (l *StandardLogger) WithExchange(exchange string) *logrus.Entry {
	return l.logger.WithField("venue", exchange)
}

// WithSymbol creates a logger with symbol context.
func (l *StandardLogger) WithSymbol(symbol string) *logrus.Entry {
	return l.logger.WithField("symbol", symbol)
}

// WithError creates a logger with error context.
func (l *StandardLogger) WithError(err error) *logrus.Entry {
	return l.logger.WithError(err)
}

// LogStartup logs application startup information.
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.WithFields(logrus.Fields{
		"service": serviceName,
		"version": version,
		"port":    port,
		"event":   "startup",
	}).Info("Application startup")
}

// LogShutdown logs application shutdown information.
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.WithFields(logrus.Fields{
		"service": serviceName,
		"reason":  reason,
		"event":   "shutdown",
	}).Info("Application shutdown")
}

// LogPerformanceMetrics logs performance metrics in a standardized format.
func (l *StandardLogger) LogPerformanceMetrics(serviceName string, metrics map[string]interface{}) {
	fields := logrus.Fields{
		"service": serviceName,
		"event":   "performance",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	l.logger.WithFields(fields).Info("Performance metrics")
}

// LogResourceStats logs resource statistics in a standardized format.
func (l *StandardLogger) LogResourceStats(serviceName string, stats map[string]interface{}) {
	fields := logrus.Fields{
		"service": serviceName,
		"event":   "resource",
	}
	for k, v := range stats {
		fields[k] = v
	}
	l.logger.WithFields(fields).Info("Resource statistics")
}

// LogBusinessEvent logs business events in a standardized format.
func (l *StandardLogger) LogBusinessEvent(eventType string, details map[string]interface{}) {
	fields := logrus.Fields{
		"event_type": eventType,
		"event":      "business",
	}
	for k, v := range details {
		fields[k] = v
	}
	l.logger.WithFields(fields).Info("Business event")
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
