// Package definition holds the default, ready-to-use implementations the
// core falls back to when an embedding application does not supply its
// own: currently the logger.
package definition

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

// DefaultLogger is the default types.Logger backend: a logrus.Logger
// writing text-formatted lines to stderr. Sinks beyond stderr (file
// rotation, syslog, remote shipping) are a core Non-goal; embedding
// applications wanting those configure their own logrus.Logger and wrap
// it the same way this type does.
type DefaultLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger builds a DefaultLogger at info level, text formatter,
// writing to stderr.
func NewDefaultLogger() *DefaultLogger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &DefaultLogger{entry: logrus.NewEntry(base)}
}

func (l *DefaultLogger) Info(v ...interface{})                   { l.entry.Info(v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})    { l.entry.Infof(format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                    { l.entry.Warn(v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})    { l.entry.Warnf(format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                   { l.entry.Error(v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{})   { l.entry.Errorf(format, v...) }
func (l *DefaultLogger) Debug(v ...interface{})                   { l.entry.Debug(v...) }
func (l *DefaultLogger) Debugf(format string, v ...interface{})   { l.entry.Debugf(format, v...) }
func (l *DefaultLogger) Fatal(v ...interface{})                   { l.entry.Fatal(v...) }
func (l *DefaultLogger) Fatalf(format string, v ...interface{})   { l.entry.Fatalf(format, v...) }

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return value
}

// With returns a derived logger annotating every subsequent line with the
// given structured fields, sharing the same underlying logrus.Logger (and
// therefore the same level) as l.
func (l *DefaultLogger) With(fields types.Fields) types.Logger {
	return &DefaultLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

var _ types.Logger = (*DefaultLogger)(nil)
