package logger

import (
	"github.com/rs/zerolog"
	tmlog "github.com/tendermint/tendermint/libs/log"
)

// tmLogger routes Tendermint's key/value logging through zerolog.
type tmLogger struct {
	zl zerolog.Logger
}

// NewTMLogger adapts zl to the Tendermint logger interface.
func NewTMLogger(zl zerolog.Logger) tmlog.Logger {
	return tmLogger{zl: zl}
}

func (l tmLogger) Debug(msg string, keyvals ...interface{}) {
	l.zl.Debug().Fields(keyvals).Msg(msg)
}

func (l tmLogger) Info(msg string, keyvals ...interface{}) {
	l.zl.Info().Fields(keyvals).Msg(msg)
}

func (l tmLogger) Error(msg string, keyvals ...interface{}) {
	l.zl.Error().Fields(keyvals).Msg(msg)
}

func (l tmLogger) With(keyvals ...interface{}) tmlog.Logger {
	return tmLogger{zl: l.zl.With().Fields(keyvals).Logger()}
}
