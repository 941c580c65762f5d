// Package logger prints to a standard logger and mirrors entries to Rollbar
// when a token is configured.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
)

// Options configures the Rollbar side of a Logger.
type Options struct {
	Token   string
	Env     string
	Host    string
	Version string
}

// Logger writes to std and, when enabled, reports to Rollbar.
type Logger struct {
	std     *log.Logger
	rollbar bool
}

// New creates a logger writing to w with the given prefix.
func New(w io.Writer, prefix string, opts Options) *Logger {
	if w == nil {
		w = os.Stdout
	}
	l := &Logger{std: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile)}
	if opts.Token != "" {
		rollbar.SetToken(opts.Token)
		rollbar.SetEnvironment(opts.Env)
		rollbar.SetServerHost(opts.Host)
		rollbar.SetCodeVersion(opts.Version)
		rollbar.SetStackTracer(rollbarerrors.StackTracer)
		l.rollbar = true
	}
	rollbar.SetEnabled(l.rollbar)
	return l
}

// Std exposes the underlying standard logger.
func (l *Logger) Std() *log.Logger { return l.std }

// Printf logs locally only.
func (l *Logger) Printf(format string, args ...any) {
	l.std.Output(2, fmt.Sprintf(format, args...))
}

// expected args: error, map[string]interface{}
func (l *Logger) print(msg string, args []any) {
	l.std.Output(3, msg)
	for _, arg := range args {
		l.std.Output(3, fmt.Sprintf("%+v", arg))
	}
}

func (l *Logger) Info(msg string, args ...any) {
	if l.rollbar {
		rollbar.Info(append([]any{msg}, args...)...)
	}
	l.print(msg, args)
}

func (l *Logger) Warn(msg string, args ...any) {
	if l.rollbar {
		rollbar.Warning(append([]any{msg}, args...)...)
	}
	l.print(msg, args)
}

func (l *Logger) Error(msg string, args ...any) {
	if l.rollbar {
		rollbar.Error(append([]any{msg}, args...)...)
	}
	l.print(msg, args)
}

// Fatal reports, flushes and exits.
func (l *Logger) Fatal(msg string, args ...any) {
	if l.rollbar {
		rollbar.Critical(append([]any{msg}, args...)...)
		rollbar.Wait()
	}
	l.print(msg, args)
	os.Exit(1)
}

// Close flushes pending Rollbar items.
func (l *Logger) Close() {
	if l.rollbar {
		rollbar.Close()
	}
}
