// Package logging provides the per-subject leveled logging used throughout
// cardinal, mirroring the teacher's fs.Logf/fs.Debugf/fs.Errorf convention
// (see backend/local/local.go call sites such as fs.Errorf(dir, "%v", err))
// on top of logrus.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.Mutex
	log = newDefaultLogger()
)

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	return l
}

// SetLevel adjusts the global log level (used by the CLI's --verbose flag).
func SetLevel(level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	log.SetLevel(level)
}

// SetOutput redirects where log lines are written.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(w)
}

// subject returns a short human label for whatever was passed as the log
// subject: a path string, a fmt.Stringer, or nil for process-wide messages.
func subject(o any) string {
	switch v := o.(type) {
	case nil:
		return "-"
	case string:
		if v == "" {
			return "-"
		}
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Debugf logs a debug-level message about a subject (a path, node, or nil).
func Debugf(o any, format string, args ...any) {
	mu.Lock()
	entry := log.WithField("subject", subject(o))
	mu.Unlock()
	entry.Debugf(format, args...)
}

// Logf logs an info-level message about a subject.
func Logf(o any, format string, args ...any) {
	mu.Lock()
	entry := log.WithField("subject", subject(o))
	mu.Unlock()
	entry.Infof(format, args...)
}

// Errorf logs an error-level message about a subject.
func Errorf(o any, format string, args ...any) {
	mu.Lock()
	entry := log.WithField("subject", subject(o))
	mu.Unlock()
	entry.Errorf(format, args...)
}
