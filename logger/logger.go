// Package logger adapts popular logging libraries to volkv's Logger
// interface. The standard library's slog.Logger already satisfies it
// directly; these adapters cover logrus and zap.
package logger
