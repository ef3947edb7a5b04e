package util

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	DebugLevel = iota
	InfoLevel
	ErrorLevel
)

var (
	LogLevel int         = InfoLevel // control DefaultLogger log level
	Logger   StoreLogger = NewDefaultLogger()
)

type (
	StoreLogger interface {
		Debugf(format string, v ...interface{})
		Infof(format string, v ...interface{})
		Errorf(format string, v ...interface{})
	}

	// DefaultLogger a zerolog console logger
	DefaultLogger struct {
		log zerolog.Logger
	}
)

func NewDefaultLogger() *DefaultLogger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return &DefaultLogger{
		log: zerolog.New(output).With().Timestamp().Logger(),
	}
}

// NewZeroLogger wrap an existing zerolog logger
func NewZeroLogger(l zerolog.Logger) *DefaultLogger {
	return &DefaultLogger{log: l}
}

func LogDebugIf(condition bool, format string, v ...interface{}) {
	if condition {
		Logger.Debugf(format, v...)
	}
}

func LogErrIf(condition bool, format string, v ...interface{}) {
	if condition {
		Logger.Errorf(format, v...)
	}
}

func LogIfErr(err error, format string, v ...interface{}) {
	if err == nil {
		return
	}
	Logger.Errorf(format+", err:%v", append(v, err)...)
}

func LogErr(format string, v ...interface{}) {
	Logger.Errorf(format, v...)
}

func LogInfo(format string, v ...interface{}) {
	Logger.Infof(format, v...)
}

func LogDebug(format string, v ...interface{}) {
	Logger.Debugf(format, v...)
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if LogLevel > DebugLevel {
		return
	}
	l.log.Debug().Msg(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	if LogLevel > InfoLevel {
		return
	}
	l.log.Info().Msg(fmt.Sprintf(format, v...))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	if LogLevel > ErrorLevel {
		return
	}
	l.log.Error().Msg(fmt.Sprintf(format, v...))
}
