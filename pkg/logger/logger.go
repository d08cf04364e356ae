// Package logger wraps logrus behind a small package-level API, the
// same shape the rest of the coordinator's components call into
// regardless of which backend actually renders the log line.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

type Fields map[string]interface{}

var global = logrus.New()

func init() {
	global.SetOutput(os.Stdout)
	global.SetFormatter(&logrus.JSONFormatter{})
	global.SetLevel(logrus.InfoLevel)
}

// InitGlobalLogger configures the global logger's level and format.
func InitGlobalLogger(level string, jsonFormat bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	global.SetLevel(lvl)
	if jsonFormat {
		global.SetFormatter(&logrus.JSONFormatter{})
	} else {
		global.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// GlobalLogger returns the underlying logrus logger for callers that
// need the full entry builder API (WithFields, WithError, ...).
func GlobalLogger() *logrus.Logger {
	return global
}

// SetGlobalLogger swaps the backing logrus logger, mainly for tests.
func SetGlobalLogger(l *logrus.Logger) {
	global = l
}

func WithFields(fields Fields) *logrus.Entry {
	return global.WithFields(logrus.Fields(fields))
}

func Debug(args ...interface{}) { global.Debug(args...) }
func Debugf(format string, args ...interface{}) { global.Debugf(format, args...) }
func Info(args ...interface{})  { global.Info(args...) }
func Infof(format string, args ...interface{})  { global.Infof(format, args...) }
func Warn(args ...interface{})  { global.Warn(args...) }
func Warnf(format string, args ...interface{})  { global.Warnf(format, args...) }
func Error(args ...interface{}) { global.Error(args...) }
func Errorf(format string, args ...interface{}) { global.Errorf(format, args...) }
func Fatal(args ...interface{}) { global.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { global.Fatalf(format, args...) }
