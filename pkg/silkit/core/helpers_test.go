package core

import (
	"testing"

	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

// noopLogger discards everything; tests want silence, not stderr spam.
type noopLogger struct{}

func newNoopLogger() types.Logger { return noopLogger{} }

func (noopLogger) Info(v ...interface{})                 {}
func (noopLogger) Infof(format string, v ...interface{})  {}
func (noopLogger) Warn(v ...interface{})                 {}
func (noopLogger) Warnf(format string, v ...interface{})  {}
func (noopLogger) Error(v ...interface{})                {}
func (noopLogger) Errorf(format string, v ...interface{}) {}
func (noopLogger) Debug(v ...interface{})                {}
func (noopLogger) Debugf(format string, v ...interface{}) {}
func (noopLogger) Fatal(v ...interface{})                {}
func (noopLogger) Fatalf(format string, v ...interface{}) {}
func (noopLogger) ToggleDebug(value bool) bool           { return value }
func (l noopLogger) With(fields types.Fields) types.Logger { return l }

func encodeWorkflowConfigurationForTest(t *testing.T, wc types.WorkflowConfiguration) []byte {
	t.Helper()
	return wire.EncodeWorkflowConfiguration(wc)
}

func encodeParticipantStatusForTest(t *testing.T, s types.ParticipantStatus) []byte {
	t.Helper()
	return wire.EncodeParticipantStatus(s)
}
