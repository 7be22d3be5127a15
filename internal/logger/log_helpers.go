// Package logger provides structured logging backed by zap.
package logger

// Info logs an info message with alternating key/value pairs.
func Info(msg string, args ...any) {
	Logger().Infow(msg, args...)
}

// Error logs an error message with alternating key/value pairs.
func Error(msg string, args ...any) {
	Logger().Errorw(msg, args...)
}

// Debug logs a debug message with alternating key/value pairs.
func Debug(msg string, args ...any) {
	Logger().Debugw(msg, args...)
}

// Warn logs a warning message with alternating key/value pairs.
func Warn(msg string, args ...any) {
	Logger().Warnw(msg, args...)
}
