package domain

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func ValidateInterval(minutes int) error {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return invalid("intervalMinutes", "must be between %d and %d, got %d",
			MinIntervalMinutes, MaxIntervalMinutes, minutes)
	}
	return nil
}

func ValidateTarget(t Target) error {
	if t.Empty() {
		return invalid("target", "must not be empty")
	}
	if !t.IsBatch() && strings.HasPrefix(t.Encode(), BatchScheme) {
		return invalid("target", "%q scheme is reserved for batch tasks", BatchScheme)
	}
	for i, u := range t.URLs() {
		if err := ValidateURL(u); err != nil {
			if t.IsBatch() {
				return invalid("target", "member %d: %s", i, err.(*ValidationError).Reason)
			}
			return err
		}
	}
	return nil
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return invalid("target", "must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("target", "%v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("target", "scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return invalid("target", "missing host in %q", raw)
	}
	return nil
}

func ValidateStatus(s Status) error {
	if !s.Valid() {
		return invalid("status", "unknown status %q", s)
	}
	return nil
}

// Validate checks the user-editable fields of a task.
func (t Task) Validate() error {
	if err := ValidateTarget(t.Target); err != nil {
		return err
	}
	if err := ValidateInterval(t.IntervalMinutes); err != nil {
		return err
	}
	return ValidateStatus(t.Status)
}
