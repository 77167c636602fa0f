/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-wsrelay/log"
)

// RecordedEntry is an entry captured by Recorder.
type RecordedEntry struct {
	LoggerName string
	Level      log.Level
	Time       time.Time
	Text       string
	// Fields holds the entry's own fields followed by the ones inherited via With.
	Fields []log.Field
}

// FindField returns the first field with the given key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// StringField returns the value of a string field, or "" if there is no such field.
func (re *RecordedEntry) StringField(key string) string {
	f, ok := re.FindField(key)
	if !ok {
		return ""
	}
	return string(f.Bytes)
}

// entryStore is shared by a Recorder and every logger derived from it.
type entryStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

func (s *entryStore) WriteEntry(e logf.Entry) { //nolint:gocritic
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)
	s.mu.Lock()
	s.entries = append(s.entries, RecordedEntry{
		LoggerName: e.LoggerName,
		Level:      log.LevelFromLogf(e.Level),
		Time:       e.Time,
		Text:       e.Text,
		Fields:     fields,
	})
	s.mu.Unlock()
}

func (s *entryStore) filter(match func(RecordedEntry) bool, limit int) []RecordedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []RecordedEntry
	for _, e := range s.entries {
		if match(e) {
			res = append(res, e)
			if limit > 0 && len(res) == limit {
				break
			}
		}
	}
	return res
}

// Recorder is a log.FieldLogger keeping every entry in memory so tests can inspect what was logged.
// Loggers returned by With and WithLevel record into the same Recorder storage.
type Recorder struct {
	log.FieldLogger
	store *entryStore
}

var _ log.FieldLogger = (*Recorder)(nil)

// NewRecorder returns an empty debug-level Recorder.
func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{log.Wrap(logf.NewLogger(logf.LevelDebug, store)), store}
}

func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.FieldLogger.With(fs...), r.store}
}

func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.FieldLogger.WithLevel(level), r.store}
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []RecordedEntry {
	return r.store.filter(func(RecordedEntry) bool { return true }, 0)
}

// FindEntry returns the first entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(textIs(msg))
}

func (r *Recorder) FindEntryByFilter(match func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	if found := r.store.filter(match, 1); len(found) != 0 {
		return found[0], true
	}
	return RecordedEntry{}, false
}

func (r *Recorder) FindAllEntriesByFilter(match func(entry RecordedEntry) bool) []RecordedEntry {
	return r.store.filter(match, 0)
}

// CountEntries returns how many entries have the given message.
func (r *Recorder) CountEntries(msg string) int {
	return len(r.store.filter(textIs(msg), 0))
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	r.store.entries = nil
	r.store.mu.Unlock()
}

func textIs(msg string) func(RecordedEntry) bool {
	return func(e RecordedEntry) bool { return e.Text == msg }
}
