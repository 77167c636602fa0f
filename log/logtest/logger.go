/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"

	"github.com/acronis/go-wsrelay/log"
)

// LoggerOpts configures a logger made by NewLoggerWithOpts.
type LoggerOpts struct {
	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger returns a debug-level logger writing uncolored text to stderr.
// Entries are written synchronously, so it is only suitable for tests.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOpts(LoggerOpts{})
}

// NewLoggerWithOpts is like NewLogger but writes to opts.Output.
func NewLoggerWithOpts(opts LoggerOpts) log.FieldLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	noColor := true
	return log.Wrap(logf.NewLogger(logf.LevelDebug, &syncWriter{
		appender: logftext.NewAppender(out, logftext.EncoderConfig{
			NoColor:    &noColor,
			EncodeTime: logf.RFC3339NanoTimeEncoder,
		}),
	}))
}

// syncWriter appends every entry immediately, unlike the channel writer used in production.
type syncWriter struct {
	mu       sync.Mutex
	appender logf.Appender
}

func (w *syncWriter) WriteEntry(e logf.Entry) { //nolint:gocritic
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.appender.Append(e); err == nil {
		_ = w.appender.Flush()
	}
}
