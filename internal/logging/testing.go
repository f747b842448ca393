package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records entries in memory so tests can inspect what a
// component logged. Every level down to Trace is kept.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns an empty TestLogger.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		logs:   logs,
	}
}

// Entries returns everything logged so far, oldest first.
func (t *TestLogger) Entries() []observer.LoggedEntry {
	return t.logs.All()
}

// Clear drops the recorded entries.
func (t *TestLogger) Clear() {
	t.logs.TakeAll()
}

// Logged reports whether an entry at level has a message containing substr.
func (t *TestLogger) Logged(level zapcore.Level, substr string) bool {
	for _, e := range t.logs.All() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Field returns the value of key on the first entry whose message contains msg.
func (t *TestLogger) Field(msg, key string) (any, bool) {
	for _, e := range t.logs.FilterMessageSnippet(msg).All() {
		if v, ok := e.ContextMap()[key]; ok {
			return v, true
		}
	}
	return nil, false
}
