package logger

import (
	"go.uber.org/zap"
)

// Zap adapts a *zap.Logger through its sugared form, whose *w methods take
// the same alternating key-value arguments as the core interface.
type Zap struct {
	s *zap.SugaredLogger
}

func NewZap(l *zap.Logger) *Zap {
	return &Zap{s: l.Sugar()}
}

func (a *Zap) Error(msg string, args ...any) {
	a.s.Errorw(msg, args...)
}

func (a *Zap) Warn(msg string, args ...any) {
	a.s.Warnw(msg, args...)
}

func (a *Zap) Info(msg string, args ...any) {
	a.s.Infow(msg, args...)
}
