package server

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var pkgLogger atomic.Pointer[zap.Logger]

// SetLogger replaces the logger used by the server package. Passing nil
// silences it.
func SetLogger(l *zap.Logger) {
	pkgLogger.Store(l)
}

func logger() *zap.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}
