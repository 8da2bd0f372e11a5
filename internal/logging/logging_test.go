package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("should not appear", nil)
	l.Info("should not appear either", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output below threshold, got %q", buf.String())
	}

	l.Warn("stale fingerprint", Fields{"file": "Foo.class"})
	if !strings.Contains(buf.String(), "stale fingerprint") {
		t.Fatalf("expected warn message in output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "file=Foo.class") {
		t.Fatalf("expected structured field in output, got %q", buf.String())
	}
}

func TestLoggerMCPModeSuppresses(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)
	l.SetMCPMode(true)

	l.Error("boom", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected MCP mode to suppress output, got %q", buf.String())
	}
}

func TestWithComponentPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo).WithComponent("refresh")

	l.Info("phase complete", nil)
	if !strings.Contains(buf.String(), "refresh phase complete") {
		t.Fatalf("expected component prefix, got %q", buf.String())
	}
}

func TestFieldsSortedDeterministically(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Info("counts", Fields{"indexed": 3, "deleted": 1})
	out := buf.String()
	di := strings.Index(out, "deleted=")
	ii := strings.Index(out, "indexed=")
	if di == -1 || ii == -1 || di > ii {
		t.Fatalf("expected sorted field order (deleted before indexed), got %q", out)
	}
}
