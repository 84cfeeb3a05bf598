package testutil

import (
	"sync"

	"github.com/trezcool/feeportal/core"
)

// Logger records the messages logged at Warn level and above.
type Logger struct {
	mu   sync.Mutex
	msgs []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) record(msg string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func (l *Logger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

func (l *Logger) Debug(string, ...interface{}) {}
func (l *Logger) Info(string, ...interface{})  {}

func (l *Logger) Warn(msg string, _ ...interface{})  { l.record(msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.record(msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.record(msg) }
