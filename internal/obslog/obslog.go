// Package obslog provides the single structured logger construction point
// used by every synccore component, following the same "construct once,
// thread everywhere" pattern the teacher's eventloop package uses for its
// package-level Logger (see eventloop/logging.go), adapted to a per-process
// github.com/joeycumines/logiface logger instead of a global.
package obslog

import (
	"io"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the concrete logger type threaded through synccore components.
type Logger = logiface.Logger[*izerolog.Event]

// New builds a Logger writing JSON lines to w (os.Stderr if nil), at the
// given minimum level. Components should hold one Logger and derive
// per-operation/per-session child loggers via With.
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	return logiface.New[*izerolog.Event](
		izerolog.WithZerolog(zl),
		logiface.WithLevel[*izerolog.Event](level),
	)
}

// Noop returns a logger with logging disabled, for tests that don't care
// about log output but still need a non-nil Logger.
func Noop() *Logger {
	return logiface.New[*izerolog.Event](
		izerolog.WithZerolog(zerolog.Nop()),
		logiface.WithLevel[*izerolog.Event](logiface.LevelDisabled),
	)
}

// With derives a child logger pre-populated with a correlation field, for
// example obslog.With(logger, "operationId", opID).
func With(l *Logger, key string, val any) *Logger {
	return l.Clone().Field(key, val).Logger()
}
