// Package logging adapts logrus to mailqueue.Logger.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/velmie/mailqueue"
)

const badKey = "!BADKEY"

// Logger writes key/value pairs as logrus fields.
type Logger struct {
	entry *logrus.Entry
}

var _ mailqueue.Logger = (*Logger)(nil)

// New returns a JSON logger with RFC3339 timestamps writing to w at level.
func New(w io.Writer, level string) (*Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	l.SetOutput(w)
	l.SetLevel(lvl)

	return Wrap(l), nil
}

// Wrap adapts an existing logrus logger.
func Wrap(l *logrus.Logger) *Logger {
	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a logger that adds the given pairs to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{entry: l.entry.WithFields(fields(args))}
}

// Debug implements mailqueue.Logger.
func (l *Logger) Debug(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Debug(msg)
}

// Info implements mailqueue.Logger.
func (l *Logger) Info(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Info(msg)
}

// Warn implements mailqueue.Logger.
func (l *Logger) Warn(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Warn(msg)
}

// Error implements mailqueue.Logger.
func (l *Logger) Error(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Error(msg)
}

// fields pairs up args; a trailing key without value is stored under badKey.
func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			f[badKey] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		f[key] = value(args[i+1])
	}

	return f
}

// value renders Stringers such as mailqueue.ID as text; errors are handled by logrus.
func value(v any) any {
	switch t := v.(type) {
	case error:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}
