package logger

import (
	"github.com/sirupsen/logrus"
)

// Logrus adapts a *logrus.Logger. Key-value argument pairs become fields.
type Logrus struct {
	l *logrus.Logger
}

func NewLogrus(l *logrus.Logger) *Logrus {
	return &Logrus{l: l}
}

func (a *Logrus) Error(msg string, args ...any) {
	a.l.WithFields(fields(args)).Error(msg)
}

func (a *Logrus) Warn(msg string, args ...any) {
	a.l.WithFields(fields(args)).Warn(msg)
}

func (a *Logrus) Info(msg string, args ...any) {
	a.l.WithFields(fields(args)).Info(msg)
}

func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		f[key] = args[i+1]
	}
	return f
}
