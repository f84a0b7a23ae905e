// Package vlog implements the hierarchical validation log used while reading
// a package.
//
// A Log carries a stack of named contexts. Events are tagged with the
// context path that was current when they were recorded. Info, warning and
// error events are observational. A fatal event is terminal: Fatal returns a
// *FatalError that callers propagate, and from then on the Log refuses to run
// new context blocks and drops further events, so the fatal event is always
// the last one recorded.
package vlog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Severity is the severity of a validation event.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(s) {
	case "info":
		return SeverityInfo, true
	case "warning", "warn":
		return SeverityWarning, true
	case "error":
		return SeverityError, true
	case "fatal":
		return SeverityFatal, true
	}
	return SeverityInfo, false
}

// PageKey is the attribute key used for page references into the published
// 3MF core standard.
const PageKey = "page"

// Page returns an attribute referencing a page of the 3MF core standard.
func Page(n int) slog.Attr {
	return slog.Int(PageKey, n)
}

// Event is one recorded validation outcome.
type Event struct {
	Time     time.Time
	Severity Severity
	Path     []string // context names, outermost first
	Message  string
	Kind     error // sentinel classifying the event; may be nil
	Attrs    []slog.Attr
}

// Context returns the slash-joined context path of the event.
func (e Event) Context() string {
	return strings.Join(e.Path, "/")
}

// Page returns the standard page attached to the event, if any.
func (e Event) Page() (int, bool) {
	for _, a := range e.Attrs {
		if a.Key == PageKey && a.Value.Kind() == slog.KindInt64 {
			return int(a.Value.Int64()), true
		}
	}
	return 0, false
}

// Is reports whether the event's kind matches target.
func (e Event) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

func (e Event) String() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(e.Severity.String()))
	if len(e.Path) > 0 {
		b.WriteString(" [")
		b.WriteString(e.Context())
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	for _, a := range e.Attrs {
		b.WriteString(" ")
		b.WriteString(a.String())
	}
	return b.String()
}

// FatalError is returned by Log.Fatal and carries the fatal event.
type FatalError struct {
	Event Event
}

func (e *FatalError) Error() string {
	if e.Event.Context() != "" {
		return "fatal [" + e.Event.Context() + "]: " + e.Event.Message
	}
	return "fatal: " + e.Event.Message
}

func (e *FatalError) Unwrap() error {
	return e.Event.Kind
}

// IsFatal reports whether err carries a fatal validation event.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Option configures a Log.
type Option func(*Log)

// WithLogger mirrors every recorded event to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// Log is a hierarchical validation log. It is not safe for concurrent use.
type Log struct {
	path   []string
	events []Event
	fatal  *FatalError
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty Log.
func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Context pushes name, runs fn and pops name again, even if fn panics.
// Once a fatal event has been recorded fn is not run and the recorded fatal
// error is returned instead.
func (l *Log) Context(name string, fn func(*Log) error) error {
	if l.fatal != nil {
		return l.fatal
	}
	l.path = append(l.path, name)
	defer func() {
		l.path = l.path[:len(l.path)-1]
	}()
	err := fn(l)
	if l.fatal != nil {
		return l.fatal
	}
	return err
}

// Path returns a copy of the current context path.
func (l *Log) Path() []string {
	return append([]string(nil), l.path...)
}

// Info records an informational event.
func (l *Log) Info(msg string, args ...any) {
	l.record(SeverityInfo, nil, msg, args)
}

// Warning records a warning.
func (l *Log) Warning(msg string, args ...any) {
	l.record(SeverityWarning, nil, msg, args)
}

// Error records a recoverable error of the given kind.
func (l *Log) Error(kind error, msg string, args ...any) {
	l.record(SeverityError, kind, msg, args)
}

// Fatal records a fatal event and returns the error that must be propagated
// to the top-level caller. Calling Fatal again after a fatal event returns
// the first one.
func (l *Log) Fatal(kind error, msg string, args ...any) error {
	if l.fatal != nil {
		return l.fatal
	}
	ev := l.record(SeverityFatal, kind, msg, args)
	l.fatal = &FatalError{Event: ev}
	return l.fatal
}

// Err returns the recorded fatal error, or nil.
func (l *Log) Err() error {
	if l.fatal == nil {
		return nil
	}
	return l.fatal
}

// Events returns a copy of every recorded event in order.
func (l *Log) Events() []Event {
	return append([]Event(nil), l.events...)
}

// Filter returns the events with the given severity.
func (l *Log) Filter(sev Severity) []Event {
	var out []Event
	for _, ev := range l.events {
		if ev.Severity == sev {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns the number of events with the given severity.
func (l *Log) Count(sev Severity) int {
	return len(l.Filter(sev))
}

// Has reports whether an event of the given kind was recorded.
func (l *Log) Has(kind error) bool {
	for _, ev := range l.events {
		if ev.Is(kind) {
			return true
		}
	}
	return false
}

func (l *Log) record(sev Severity, kind error, msg string, args []any) Event {
	if l.fatal != nil {
		return l.fatal.Event
	}

	now := l.now()
	ev := Event{
		Time:     now,
		Severity: sev,
		Path:     l.Path(),
		Message:  msg,
		Kind:     kind,
	}
	if len(args) > 0 {
		r := slog.NewRecord(now, slog.LevelInfo, msg, 0)
		r.Add(args...)
		r.Attrs(func(a slog.Attr) bool {
			ev.Attrs = append(ev.Attrs, a)
			return true
		})
	}
	l.events = append(l.events, ev)
	l.mirror(ev)
	return ev
}

func (l *Log) mirror(ev Event) {
	if l.logger == nil {
		return
	}

	level := slog.LevelInfo
	switch ev.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError, SeverityFatal:
		level = slog.LevelError
	}

	attrs := make([]slog.Attr, 0, len(ev.Attrs)+3)
	attrs = append(attrs, slog.String("context", ev.Context()))
	if ev.Severity == SeverityFatal {
		attrs = append(attrs, slog.Bool("fatal", true))
	}
	if ev.Kind != nil {
		attrs = append(attrs, slog.String("kind", ev.Kind.Error()))
	}
	attrs = append(attrs, ev.Attrs...)
	l.logger.LogAttrs(context.Background(), level, ev.Message, attrs...)
}
