/*
Package logging is a centralized logging facility for the proxy. It offers
leveled logging methods which only format messages that are going to be
written.
*/
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"
)

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(1 << 20)
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(newLogger(os.Stdout, LevelInfo))
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}))
}

// LevelFor maps numeric verbosity used on the command line to slog level:
// 0 trace, 1 debug, 2 info, 3 warning, 4 error and anything above is off.
func LevelFor(level uint8) slog.Level {
	switch level {
	case 0:
		return LevelTrace
	case 1:
		return LevelDebug
	case 2:
		return LevelInfo
	case 3:
		return LevelWarn
	case 4:
		return LevelError
	default:
		return LevelOff
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup replaces the package logger. Records go to the file at path
// (appended, created when missing) or to stdout when path is empty. Returned
// closer releases the log file.
func Setup(level uint8, path string) (io.Closer, error) {
	if path == "" {
		logger.Store(newLogger(os.Stdout, LevelFor(level)))
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("can't open log file: %w", err)
	}
	logger.Store(newLogger(f, LevelFor(level)))
	return f, nil
}

// SetOutput redirects the package logger to w.
func SetOutput(w io.Writer, level slog.Level) {
	logger.Store(newLogger(w, level))
}

// Logger returns current package logger.
func Logger() *slog.Logger {
	return logger.Load()
}

func enabled(level slog.Level) bool {
	return logger.Load().Enabled(context.Background(), level)
}

// output writes the record on behalf of the caller of the exported helper,
// so the source attribute points to the call site.
func output(level slog.Level, msg string, args ...any) {
	l := logger.Load()
	if !l.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.Handler().Handle(context.Background(), r)
}

func Trace(msg string, args ...any) {
	output(LevelTrace, msg, args...)
}

func Tracef(format string, args ...any) {
	if !enabled(LevelTrace) {
		return
	}
	output(LevelTrace, fmt.Sprintf(format, args...))
}

func Debug(msg string, args ...any) {
	output(LevelDebug, msg, args...)
}

func Debugf(format string, args ...any) {
	if !enabled(LevelDebug) {
		return
	}
	output(LevelDebug, fmt.Sprintf(format, args...))
}

func Info(msg string, args ...any) {
	output(LevelInfo, msg, args...)
}

func Infof(format string, args ...any) {
	if !enabled(LevelInfo) {
		return
	}
	output(LevelInfo, fmt.Sprintf(format, args...))
}

func Warn(msg string, args ...any) {
	output(LevelWarn, msg, args...)
}

func Warnf(format string, args ...any) {
	if !enabled(LevelWarn) {
		return
	}
	output(LevelWarn, fmt.Sprintf(format, args...))
}

func Err(msg string, args ...any) {
	output(LevelError, msg, args...)
}

func Errf(format string, args ...any) {
	if !enabled(LevelError) {
		return
	}
	output(LevelError, fmt.Sprintf(format, args...))
}
