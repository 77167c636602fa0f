/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package log provides the structured logger used across the relay.
package log

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a single key/value pair attached to a log entry.
type Field = logf.Field

// CloseFunc flushes buffered entries and stops the asynchronous writer.
type CloseFunc logf.ChannelWriterCloseFunc

// Field constructors.
var (
	Error    = logf.Error
	String   = logf.String
	Strings  = logf.Strings
	Int      = logf.Int
	Int64    = logf.Int64
	Uint64   = logf.Uint64
	Float64  = logf.Float64
	Duration = logf.Duration
	Bool     = logf.Bool
)

// FieldLogger writes leveled entries with structured fields.
type FieldLogger interface {
	With(...Field) FieldLogger
	// WithLevel adds one more level check. Only raising the level has an effect.
	WithLevel(level Level) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)
}

// Wrap makes a FieldLogger from a logf logger.
func Wrap(l *logf.Logger) FieldLogger {
	return logfLogger{l}
}

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return logfLogger{logf.NewDisabledLogger()}
}

// NewLogger builds a logger from cfg. The returned CloseFunc must be called before exit,
// otherwise buffered entries may be lost.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	w, closeWriter := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, openOutput(cfg)),
		EnableSyncOnError: true,
	})
	l := logf.NewLogger(cfg.Level.logfLevel(), w).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		l = l.WithCaller().WithCallerSkip(1)
	}
	return logfLogger{l}, CloseFunc(closeWriter)
}

type logfLogger struct {
	l *logf.Logger
}

func (a logfLogger) With(fs ...Field) FieldLogger {
	return logfLogger{a.l.With(fs...)}
}

func (a logfLogger) WithLevel(level Level) FieldLogger {
	return logfLogger{a.l.WithLevel(level.logfLevel())}
}

func (a logfLogger) Debug(msg string, fs ...Field) { a.l.Debug(msg, fs...) }
func (a logfLogger) Info(msg string, fs ...Field)  { a.l.Info(msg, fs...) }
func (a logfLogger) Warn(msg string, fs ...Field)  { a.l.Warn(msg, fs...) }
func (a logfLogger) Error(msg string, fs ...Field) { a.l.Error(msg, fs...) }

func (lvl Level) logfLevel() logf.Level {
	switch lvl {
	case LevelDebug:
		return logf.LevelDebug
	case LevelWarn:
		return logf.LevelWarn
	case LevelError:
		return logf.LevelError
	default:
		return logf.LevelInfo
	}
}

// LevelFromLogf maps a logf level back to Level.
func LevelFromLogf(lvl logf.Level) Level {
	switch lvl {
	case logf.LevelDebug:
		return LevelDebug
	case logf.LevelWarn:
		return LevelWarn
	case logf.LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func openOutput(cfg *Config) io.Writer {
	switch cfg.Output {
	case OutputStderr:
		return os.Stderr
	case OutputFile:
		rot := cfg.File.Rotation
		return &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path, time.Now()),
			MaxSize:    int(rot.MaxSize >> 20),
			MaxBackups: rot.MaxBackups,
			MaxAge:     rot.MaxAgeDays,
			Compress:   rot.Compress,
			LocalTime:  rot.LocalTimeInNames,
		}
	default:
		return os.Stdout
	}
}

func newAppender(cfg *Config, w io.Writer) logf.Appender {
	var encodeErr logf.ErrorEncoder
	if cfg.Error.NoVerbose || cfg.Error.VerboseSuffix != "" {
		encodeErr = logf.NewErrorEncoder(logf.ErrorEncoderConfig{
			NoVerboseField:     cfg.Error.NoVerbose,
			VerboseFieldSuffix: cfg.Error.VerboseSuffix,
		})
	}
	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{
			NoColor:     &noColor,
			EncodeTime:  logf.RFC3339NanoTimeEncoder,
			EncodeError: encodeErr,
		})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		EncodeError:  encodeErr,
	}))
}

// expandFilePath substitutes {{starttime}} and {{pid}} in a log file path.
func expandFilePath(path string, start time.Time) string {
	return strings.NewReplacer(
		"{{starttime}}", start.Format("200601021504"),
		"{{pid}}", strconv.Itoa(os.Getpid()),
	).Replace(path)
}
