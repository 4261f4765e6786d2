package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserFriendlyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      UserFriendlyError
		contains []string
	}{
		{
			name:     "message only",
			err:      UserFriendlyError{Message: "something broke"},
			contains: []string{"something broke"},
		},
		{
			name: "all fields",
			err: UserFriendlyError{
				Message: "listen failed",
				Reason:  "port in use",
				Hint:    "pick another port",
				Try:     "enipstate serve --port 44819",
				Err:     fmt.Errorf("bind: address already in use"),
			},
			contains: []string{"listen failed", "Reason: port in use", "Hint: pick another port", "Try: enipstate serve --port 44819", "Details: bind: address already in use"},
		},
		{
			name: "no reason",
			err: UserFriendlyError{
				Message: "failed",
				Hint:    "hint here",
			},
			contains: []string{"failed", "Hint: hint here"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want to contain %q", msg, s)
				}
			}
		})
	}
}

func TestUserFriendlyError_ErrorOmitsEmptyFields(t *testing.T) {
	err := UserFriendlyError{Message: "msg"}
	msg := err.Error()
	if strings.Contains(msg, "Reason:") || strings.Contains(msg, "Hint:") || strings.Contains(msg, "Try:") || strings.Contains(msg, "Details:") {
		t.Errorf("Error() = %q, should not contain empty fields", msg)
	}
}

func TestUserFriendlyError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("root cause")
	err := UserFriendlyError{Message: "wrapper", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap should return the inner error")
	}

	var nilErr UserFriendlyError
	if nilErr.Unwrap() != nil {
		t.Error("Unwrap on nil Err should return nil")
	}
}

func TestWrapListenError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapListenError(nil, "0.0.0.0", 44818) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("address in use", func(t *testing.T) {
		err := WrapListenError(fmt.Errorf("bind: address already in use"), "0.0.0.0", 44818)
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "0.0.0.0:44818") {
			t.Errorf("message should contain address, got %q", ufe.Message)
		}
		if !strings.Contains(ufe.Reason, "in use") {
			t.Errorf("reason should mention in use, got %q", ufe.Reason)
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		err := WrapListenError(fmt.Errorf("bind: permission denied"), "0.0.0.0", 44)
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "privileges") {
			t.Errorf("reason should mention privileges, got %q", ufe.Reason)
		}
	})

	t.Run("generic error", func(t *testing.T) {
		err := WrapListenError(fmt.Errorf("something else"), "0.0.0.0", 44818)
		ufe := err.(UserFriendlyError)
		if ufe.Reason != "Network setup failed" {
			t.Errorf("unexpected reason: %q", ufe.Reason)
		}
	})
}

func TestWrapDecodeError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapDecodeError(nil, "hex input") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("rejection", func(t *testing.T) {
		err := WrapDecodeError(fmt.Errorf("enip: input rejected by grammar"), "hex input")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "hex input") {
			t.Errorf("message should contain subject, got %q", ufe.Message)
		}
		if !strings.Contains(ufe.Reason, "rejected") {
			t.Errorf("reason should mention rejection, got %q", ufe.Reason)
		}
	})

	t.Run("truncated input", func(t *testing.T) {
		err := WrapDecodeError(fmt.Errorf("message incomplete after 12 bytes"), "hex input")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "ended before") {
			t.Errorf("reason should mention truncation, got %q", ufe.Reason)
		}
	})

	t.Run("poisoned stream", func(t *testing.T) {
		err := WrapDecodeError(fmt.Errorf("cursor poisoned: cannot draw symbols from *errors.errorString"), "stream")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "failed mid-message") {
			t.Errorf("reason should mention stream failure, got %q", ufe.Reason)
		}
	})

	t.Run("generic decode error", func(t *testing.T) {
		err := WrapDecodeError(fmt.Errorf("something"), "stream")
		ufe := err.(UserFriendlyError)
		if ufe.Reason != "Wire decode error occurred" {
			t.Errorf("unexpected reason: %q", ufe.Reason)
		}
	})
}

func TestWrapConfigError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapConfigError(nil, "config.yaml") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("wraps config error", func(t *testing.T) {
		err := WrapConfigError(fmt.Errorf("invalid yaml"), "server.yaml")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "server.yaml") {
			t.Errorf("message should contain config path, got %q", ufe.Message)
		}
		if ufe.Reason != "invalid yaml" {
			t.Errorf("reason should be inner error message, got %q", ufe.Reason)
		}
		if !strings.Contains(ufe.Hint, "server.yaml") {
			t.Errorf("hint should reference the example config, got %q", ufe.Hint)
		}
	})
}
