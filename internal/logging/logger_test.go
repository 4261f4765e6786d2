package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		l, err := NewLogger(LogLevelInfo, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.level != LogLevelInfo {
			t.Errorf("level = %d, want %d", l.level, LogLevelInfo)
		}
		if l.file != nil {
			t.Error("file should be nil when no path given")
		}
	})

	t.Run("with file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.log")
		l, err := NewLogger(LogLevelDebug, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.file == nil {
			t.Error("file should not be nil")
		}
		if l.fileLog == nil {
			t.Error("fileLog should not be nil")
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := NewLogger(LogLevelInfo, "/nonexistent/dir/test.log")
		if err == nil {
			t.Error("expected error for invalid path")
		}
	})
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want LogLevel
	}{
		{"", LogLevelInfo},
		{"silent", LogLevelSilent},
		{"error", LogLevelError},
		{"info", LogLevelInfo},
		{"verbose", LogLevelVerbose},
		{"DEBUG", LogLevelDebug},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if err != nil {
			t.Errorf("ParseLevel(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestFileTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tee.log")
	l, err := NewLogger(LogLevelDebug, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("session %d registered", 7)
	l.Debug("payload parsed")
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "INFO: session 7 registered") {
		t.Errorf("log file missing info line:\n%s", out)
	}
	if !strings.Contains(out, "DEBUG: payload parsed") {
		t.Errorf("log file missing debug line:\n%s", out)
	}
}

func TestLevelGating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.log")
	l, err := NewLogger(LogLevelError, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("should not appear")
	l.Error("should appear")
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "should not appear") {
		t.Errorf("info line leaked past error level:\n%s", out)
	}
	if !strings.Contains(out, "ERROR: should appear") {
		t.Errorf("error line missing:\n%s", out)
	}
}

func TestSetLevel(t *testing.T) {
	l, err := NewLogger(LogLevelSilent, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()
	l.SetLevel(LogLevelVerbose)
	if got := l.GetLevel(); got != LogLevelVerbose {
		t.Errorf("GetLevel() = %d, want %d", got, LogLevelVerbose)
	}
}
