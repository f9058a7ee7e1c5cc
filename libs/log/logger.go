package log

const (
	// LogFormatPlain defines a logging format used for human-readable
	// text-based logging.
	LogFormatPlain string = "plain"

	// LogFormatText is an alias for the plain format.
	LogFormatText string = "text"

	// LogFormatJSON defines a logging format for structured JSON logging.
	LogFormatJSON string = "json"

	// Supported logging levels.
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Logger defines a generic logging interface compatible with patchbay.
type Logger interface {
	Debug(msg string, keyVals ...interface{})
	Info(msg string, keyVals ...interface{})
	Error(msg string, keyVals ...interface{})

	With(keyVals ...interface{}) Logger
}
