package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"Warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"off", LevelNone},
		{"bogus", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" {
		t.Errorf("LevelWarn.String() = %q", LevelWarn.String())
	}
	if Level(42).String() != "UNKNOWN" {
		t.Errorf("out of range level should be UNKNOWN")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelWarn, &buf, "gate")

	l.Info("hidden")
	l.Warn("unknown decision id %d", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] [gate] unknown decision id 7") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestWithPrefixSharesSink(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriter(LevelDebug, &buf, "session")
	child := root.WithPrefix("exec")

	child.Debug("spawned")
	root.SetLevel(LevelError)
	child.Warn("suppressed")

	out := buf.String()
	if !strings.Contains(out, "[session:exec] spawned") {
		t.Errorf("missing nested prefix: %q", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Errorf("child should follow the parent's level: %q", out)
	}
}

func TestNewWritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "seeky.log")

	l, err := New(LevelInfo, logPath, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("hello")
	l.Debug("not written")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	l.Error("after close")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[INFO] hello") {
		t.Errorf("missing info line: %q", content)
	}
	if strings.Contains(content, "not written") || strings.Contains(content, "after close") {
		t.Errorf("unexpected lines: %q", content)
	}
}

func TestNewDisabled(t *testing.T) {
	l, err := New(LevelDebug, "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.GetLevel() != LevelNone {
		t.Errorf("empty path should disable logging, got %v", l.GetLevel())
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelInfo, &buf, "ws")
	sl := slog.New(NewSlogHandler(l)).With("conn", 3).WithGroup("http")

	sl.Debug("dropped")
	sl.Warn("upgrade failed", "status", 400)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("debug should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] [ws] upgrade failed conn=3 http.status=400") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelDebug, &buf, "")
	StdLogger(l, slog.LevelError).Print("http: TLS handshake error")

	if !strings.Contains(buf.String(), "[ERROR] http: TLS handshake error") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}
