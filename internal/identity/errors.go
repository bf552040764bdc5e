package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Outcomes of identity calls. Callers match them with errors.Is.
var (
	// ErrValidationFailed is returned when the backend rejects a payload as invalid.
	ErrValidationFailed = errors.New("validation failed")

	// ErrRejected is returned when login credentials are refused.
	ErrRejected = errors.New("credentials rejected")

	// ErrUnauthorized is returned when the access token is refused.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnreachable is returned for transport failures, server errors and
	// responses that cannot be decoded.
	ErrUnreachable = errors.New("identity service unreachable")

	// ErrNotFound is returned when a user lookup finds nothing.
	ErrNotFound = errors.New("user not found")
)

// Error carries the human-readable reason the backend gave for a refusal.
type Error struct {
	Kind   error
	Status int
	Reason string
	Fields map[string][]string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Reason returns the message to show a user for err.
func Reason(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Reason != "" {
		return apiErr.Reason
	}
	switch {
	case errors.Is(err, ErrUnreachable):
		return "the server could not be reached, try again later"
	case errors.Is(err, ErrUnauthorized):
		return "your session has expired, please log in again"
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}

// parseErrorBody extracts a reason from the shapes the account API uses for
// failures: a message or detail string, or a map of field name to messages.
func parseErrorBody(body []byte, fallback string) (string, map[string][]string) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return fallback, nil
	}

	for _, key := range []string{"message", "detail", "error"} {
		if msg, ok := raw[key].(string); ok && msg != "" {
			return msg, nil
		}
	}

	fields := make(map[string][]string)
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			fields[name] = []string{v}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					fields[name] = append(fields[name], s)
				}
			}
		}
	}

	if len(fields) == 0 {
		return fallback, nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(fields[name], " ")))
	}

	return strings.Join(parts, "; "), fields
}
