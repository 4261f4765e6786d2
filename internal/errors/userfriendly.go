package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapListenError wraps server bind errors with user-friendly context
func WrapListenError(err error, ip string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to listen on %s:%d", ip, port),
		Reason:  extractNetworkReason(err),
		Hint:    "The port may be in use by another service, or binding may require elevated privileges",
		Try:     fmt.Sprintf("enipstate serve --port %d", port+1),
		Err:     err,
	}
}

// WrapDecodeError wraps wire decode errors with user-friendly context
func WrapDecodeError(err error, what string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to decode %s", what),
		Reason:  extractDecodeReason(err),
		Hint:    "The bytes may be truncated, or may not be an EtherNet/IP encapsulation at all",
		Try:     "enipstate decode --hex '65 00 04 00 ...'",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "See the annotated example in configs/server.yaml",
		Try:     fmt.Sprintf("enipstate serve --config %s --check", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") {
		return "Address already in use - another process holds the port"
	}
	if strings.Contains(errStr, "permission denied") {
		return "Permission denied - ports below 1024 need elevated privileges"
	}
	if strings.Contains(errStr, "cannot assign requested address") {
		return "Cannot assign requested address - the listen IP is not local to this host"
	}

	return "Network setup failed"
}

func extractDecodeReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "rejected") {
		return "The grammar rejected the input - a field value or segment tag is out of place"
	}
	if strings.Contains(errStr, "exhausted") || strings.Contains(errStr, "incomplete") {
		return "The input ended before the message was complete"
	}
	if strings.Contains(errStr, "poisoned") {
		return "The input stream failed mid-message"
	}

	return "Wire decode error occurred"
}
