// Package logging builds the slog.Logger both daemons use for their own
// operational output, and the rotating sink used when a supervised child's
// stdout is routed through the supervisor's logger (daemonshepherd's
// `stdout: log` mode).
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for the lumberjack-backed file sink.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Mode selects where the program's own log output goes.
type Mode int

const (
	// ModeConsole writes colorized text to stderr (the default).
	ModeConsole Mode = iota
	// ModeFile writes plain text through a rotating lumberjack sink.
	ModeFile
	// ModeSyslog forwards to the local syslog daemon (unix only).
	ModeSyslog
	// ModeSilent discards all output.
	ModeSilent
)

// Options configures the top-level logger built by New.
type Options struct {
	Mode  Mode
	Path  string // file path, required when Mode == ModeFile
	Level slog.Level
}

// New builds the process-wide slog.Logger per Options. It never returns an
// error for ModeSyslog failures; it falls back to stderr and logs the
// failure, since a supervisor that can't log must still run.
func New(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	switch opts.Mode {
	case ModeFile:
		w := &lj.Logger{
			Filename:   opts.Path,
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAge:     DefaultMaxAgeDays,
			Compress:   true,
		}
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	case ModeSyslog:
		w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "")
		if err != nil {
			l := slog.New(NewColorTextHandler(os.Stderr, handlerOpts, true))
			l.Error("syslog unavailable, falling back to stderr", "error", err)
			return l
		}
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	case ModeSilent:
		return slog.New(slog.NewTextHandler(io.Discard, handlerOpts))
	default:
		return slog.New(NewColorTextHandler(os.Stderr, handlerOpts, true))
	}
}

// ChildLineConfig describes the rotating file a supervised child's captured
// stdout/stderr lines are additionally mirrored to, when configured. The
// lines always also go to the supervisor's own logger under the
// "daemon.<name>" channel (daemonshepherd.Child's internal readLines
// goroutine); this is an optional extra sink for operators who want one
// file per child.
type ChildLineConfig struct {
	Dir string
}

// Writer returns a rotating writer for name's mirrored line file, or nil if
// Dir is unset.
func (c ChildLineConfig) Writer(name string) io.WriteCloser {
	if c.Dir == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   fmt.Sprintf("%s/%s.log", c.Dir, name),
		MaxSize:    DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAge:     DefaultMaxAgeDays,
		Compress:   true,
	}
}

// LevelCritical sits above slog's built-in levels; uncaught programming
// errors are logged at this level with a stack trace before the process
// terminates, per spec §7.
const LevelCritical = slog.Level(12)

// LogCritical logs an uncaught programming error at LevelCritical with a
// stack trace, then the caller is expected to terminate.
func LogCritical(l *slog.Logger, msg string, err any, stack []byte) {
	l.Log(context.Background(), LevelCritical, msg, "panic", err, "stack", string(stack))
}
