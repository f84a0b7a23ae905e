package vlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

var errKind = errors.New("test kind")

func TestSeverityString(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityFatal, "fatal"},
		{Severity(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.sev.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.sev, got, tt.want)
		}
		if tt.want == "unknown" {
			continue
		}
		if back, ok := ParseSeverity(tt.want); !ok || back != tt.sev {
			t.Errorf("ParseSeverity(%q) = %v, %v", tt.want, back, ok)
		}
	}
	if _, ok := ParseSeverity("loud"); ok {
		t.Error("ParseSeverity should reject unknown names")
	}
}

func TestContextNesting(t *testing.T) {
	l := New()

	err := l.Context("zip", func(l *Log) error {
		l.Info("Zip file is valid")
		return l.Context("relationships", func(l *Log) error {
			if got := strings.Join(l.Path(), "/"); got != "zip/relationships" {
				t.Errorf("Path() = %q, want zip/relationships", got)
			}
			l.Warning("odd relationship", "type", "urn:x")
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Context returned %v", err)
	}
	if len(l.Path()) != 0 {
		t.Errorf("context stack not unwound: %v", l.Path())
	}

	events := l.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Context() != "zip" || events[0].Severity != SeverityInfo {
		t.Errorf("event 0 = %v", events[0])
	}
	if events[1].Context() != "zip/relationships" || events[1].Severity != SeverityWarning {
		t.Errorf("event 1 = %v", events[1])
	}
	if len(events[1].Attrs) != 1 || events[1].Attrs[0].Key != "type" {
		t.Errorf("event 1 attrs = %v", events[1].Attrs)
	}
}

func TestRecoverableEventsDoNotAbort(t *testing.T) {
	l := New()
	ran := false
	err := l.Context("a", func(l *Log) error {
		l.Error(errKind, "broken", Page(11))
		l.Warning("odd")
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("recoverable events aborted the block: err=%v ran=%v", err, ran)
	}
	if l.Err() != nil {
		t.Errorf("Err() = %v, want nil", l.Err())
	}
	if l.Count(SeverityError) != 1 || l.Count(SeverityWarning) != 1 {
		t.Errorf("counts: error=%d warning=%d", l.Count(SeverityError), l.Count(SeverityWarning))
	}
	page, ok := l.Filter(SeverityError)[0].Page()
	if !ok || page != 11 {
		t.Errorf("Page() = %d, %v; want 11, true", page, ok)
	}
	if !l.Has(errKind) {
		t.Error("Has(errKind) = false")
	}
}

func TestFatalCrossesContexts(t *testing.T) {
	l := New()
	resumedA := false

	err := l.Context("A", func(l *Log) error {
		err := l.Context("B", func(l *Log) error {
			return l.Fatal(errKind, "boom")
		})
		if err != nil {
			return err
		}
		resumedA = true
		return nil
	})

	if resumedA {
		t.Error("control resumed in A after fatal")
	}
	if !IsFatal(err) {
		t.Fatalf("Context returned %v, want fatal", err)
	}
	if !errors.Is(err, errKind) {
		t.Errorf("fatal error does not unwrap to its kind: %v", err)
	}

	events := l.Events()
	last := events[len(events)-1]
	if last.Severity != SeverityFatal || last.Context() != "A/B" {
		t.Errorf("last event = %v, want fatal in A/B", last)
	}
	if !errors.Is(l.Err(), errKind) {
		t.Errorf("Err() = %v", l.Err())
	}
}

func TestFatalCannotBeSwallowed(t *testing.T) {
	l := New()

	// The inner error is discarded on purpose.
	_ = l.Context("A", func(l *Log) error {
		_ = l.Context("B", func(l *Log) error {
			return l.Fatal(errKind, "boom")
		})
		l.Info("after fatal")
		return nil
	})

	ran := false
	err := l.Context("C", func(l *Log) error {
		ran = true
		return nil
	})
	if ran {
		t.Error("Context ran a block after a fatal event")
	}
	if !IsFatal(err) {
		t.Errorf("Context after fatal returned %v", err)
	}
	if n := len(l.Events()); n != 1 {
		t.Errorf("got %d events, want only the fatal one", n)
	}
	if again := l.Fatal(errors.New("other"), "second"); !errors.Is(again, errKind) {
		t.Errorf("second Fatal should return the first fatal, got %v", again)
	}
}

func TestContextPopsOnPanic(t *testing.T) {
	l := New()
	func() {
		defer func() { _ = recover() }()
		_ = l.Context("outer", func(l *Log) error {
			panic("boom")
		})
	}()
	if len(l.Path()) != 0 {
		t.Errorf("Path() = %v after panic, want empty", l.Path())
	}
}

func TestContextReturnsBlockError(t *testing.T) {
	l := New()
	plain := errors.New("plain")
	if err := l.Context("x", func(*Log) error { return plain }); err != plain {
		t.Errorf("Context returned %v, want %v", err, plain)
	}
	if l.Err() != nil {
		t.Error("plain errors are not fatal")
	}
}

func TestMirrorToSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := New(WithLogger(logger))

	_ = l.Context("zip", func(l *Log) error {
		l.Error(errKind, "missing", Page(4))
		return l.Fatal(errKind, "stop")
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2: %s", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec["level"] != "ERROR" || rec["context"] != "zip" || rec["kind"] != "test kind" {
		t.Errorf("unexpected record: %v", rec)
	}
	if rec["page"] != float64(4) {
		t.Errorf("page = %v, want 4", rec["page"])
	}

	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec["fatal"] != true {
		t.Errorf("fatal record missing fatal=true: %v", rec)
	}
}

func TestEventString(t *testing.T) {
	ev := Event{Severity: SeverityError, Path: []string{"zip", "content types"}, Message: "missing", Attrs: []slog.Attr{Page(4)}}
	if got, want := ev.String(), "ERROR [zip/content types] missing page=4"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	fe := &FatalError{Event: Event{Message: "bad zip"}}
	if fe.Error() != "fatal: bad zip" {
		t.Errorf("Error() = %q", fe.Error())
	}
}
