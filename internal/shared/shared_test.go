package shared

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestAPIError(t *testing.T) {
	t.Run("Unwraps To Kind", func(t *testing.T) {
		err := fmt.Errorf("select: %w", &APIError{Kind: ErrConflict, Status: 409, Code: "CONFLICT"})

		if !errors.Is(err, ErrConflict) {
			t.Error("expected errors.Is to match ErrConflict")
		}
		if errors.Is(err, ErrServer) {
			t.Error("conflict should not match ErrServer")
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != 409 {
			t.Errorf("expected APIError with status 409, got %v", apiErr)
		}
	})

	t.Run("Message Formatting", func(t *testing.T) {
		err := &APIError{Kind: ErrServer, Status: 500, Code: "SERVICE_ERROR", Message: "disk full"}
		if got := err.Error(); !strings.Contains(got, "disk full") || !strings.Contains(got, "500") {
			t.Errorf("unexpected message %q", got)
		}
	})

	t.Run("Token Reasons Wrap ErrAuthFailed", func(t *testing.T) {
		for _, err := range []error{ErrTokenInvalid, ErrTokenExpired, ErrTokenRevoked} {
			if !errors.Is(err, ErrAuthFailed) {
				t.Errorf("%v should wrap ErrAuthFailed", err)
			}
		}
	})
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		retry   bool
		relogin bool
		contain string
	}{
		{name: "validation", err: fmt.Errorf("%w: artist is required", ErrValidation), contain: "artist is required"},
		{name: "quota", err: ErrQuotaExceeded, contain: "support"},
		{name: "session expired", err: ErrSessionExpired, relogin: true},
		{name: "token revoked", err: ErrTokenRevoked, relogin: true, contain: "revoked"},
		{name: "network", err: fmt.Errorf("list: %w", ErrNetwork), retry: true},
		{name: "server with detail", err: &APIError{Kind: ErrServer, Status: 502, Message: "bad gateway"}, retry: true, contain: "bad gateway"},
		{name: "conflict", err: &APIError{Kind: ErrConflict, Status: 409}, retry: true},
		{name: "forbidden", err: ErrForbidden, contain: "admin"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Describe(tc.err)
			if p.Message == "" {
				t.Fatal("expected a message")
			}
			if p.Retry != tc.retry {
				t.Errorf("Retry = %v, want %v", p.Retry, tc.retry)
			}
			if p.Relogin != tc.relogin {
				t.Errorf("Relogin = %v, want %v", p.Relogin, tc.relogin)
			}
			if tc.contain != "" && !strings.Contains(p.Message, tc.contain) {
				t.Errorf("message %q does not contain %q", p.Message, tc.contain)
			}
		})
	}

	t.Run("nil", func(t *testing.T) {
		if p := Describe(nil); p.Message != "" {
			t.Errorf("expected empty problem, got %+v", p)
		}
	})
}

func TestParseLevel(t *testing.T) {
	tc := []struct {
		in   string
		want log.Level
	}{
		{"", log.InfoLevel},
		{"debug", log.DebugLevel},
		{"WARN", log.WarnLevel},
		{"nonsense", log.InfoLevel},
	}

	for _, tt := range tc {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dash.log")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	logger.Info("poll cycle", "jobs", 3)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "poll cycle") {
		t.Errorf("log file missing entry, got %q", string(data))
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandHome("~/.karaokectl/db"); got != filepath.Join(home, ".karaokectl/db") {
		t.Errorf("ExpandHome() = %s", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome() changed absolute path to %s", got)
	}
}
