// Package logger — единый вывод логов tdc-sync с учётом quiet и уровня.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvLevel переопределяет уровень из конфига.
const EnvLevel = "TDC_SYNC_LOG_LEVEL"

// Quiet при true отключает всё ниже Error.
var Quiet bool

// base — логгер без уровня и run; Setup строит log от него заново.
var base = newLogger(os.Stderr)

var log = base

// exit подменяется в тестах.
var exit = os.Exit

func newLogger(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).With().Timestamp().Str("app", "tdc-sync").Logger()
}

// Setup задаёт уровень и идентификатор запуска. Пустой runID не добавляется.
func Setup(level, runID string) {
	if env := os.Getenv(EnvLevel); env != "" {
		level = env
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		log.Warn().Msgf("%v, используется info", err)
		lvl = zerolog.InfoLevel
	}
	l := base.Level(lvl)
	if runID != "" {
		l = l.With().Str("run", runID).Logger()
	}
	log = l
}

// SetOutput перенаправляет вывод (тесты, файлы).
func SetOutput(w io.Writer) {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	base = base.Output(out)
	log = log.Output(out)
}

// ParseLevel разбирает имя уровня.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "off", "disabled":
		return zerolog.Disabled, nil
	}
	return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Debug — подробности работы цикла (пустые кадры, чужие потоки).
func Debug(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Debug().Msgf(format, args...)
}

// Info выводит сообщение, если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Info().Msgf(format, args...)
}

// Warn выводит предупреждение, если Quiet == false.
func Warn(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Warn().Msgf(format, args...)
}

// Error выводит сообщение об ошибке всегда.
func Error(format string, args ...interface{}) {
	log.Error().Msgf(format, args...)
}

// Fatal выводит ошибку и завершает процесс с кодом 1.
func Fatal(format string, args ...interface{}) {
	log.WithLevel(zerolog.FatalLevel).Msgf(format, args...)
	exit(1)
}
