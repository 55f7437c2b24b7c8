package types

// Logger is implemented by every logging backend the core accepts. Its
// shape mirrors what handlers across the core expect: leveled, printf-style
// calls plus a debug toggle, so a participant can be built with either the
// default backend or one supplied by the embedding application.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})

	// ToggleDebug enables or disables debug-level output and returns the
	// resulting state.
	ToggleDebug(value bool) bool

	// With returns a derived Logger that annotates every subsequent call
	// with the given structured fields (e.g. participant/peer names).
	With(fields Fields) Logger
}

// Fields is a set of structured key/value pairs attached to log lines.
type Fields map[string]interface{}
