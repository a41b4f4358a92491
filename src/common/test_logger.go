package common

import (
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string
	// set once the test is over, t.Log panics after that
	done atomic.Bool
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if a.done.Load() {
		return len(d), nil
	}
	if d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a logrus Logger that writes through t.Log at the given
// level.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	adapter := &testLoggerAdapter{t: t}
	t.Cleanup(func() { adapter.done.Store(true) })

	logger := logrus.New()
	logger.Out = adapter
	logger.Level = level
	return logger
}

// NewTestEntry is NewTestLogger at debug level with the prefix field set.
func NewTestEntry(t testing.TB, prefix string) *logrus.Entry {
	return NewTestLogger(t, logrus.DebugLevel).WithField("prefix", prefix)
}
