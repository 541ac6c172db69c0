package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration parses the "30s" / "5m" notation from YAML and env values.
// Negative durations are rejected: every duration in this system is a
// timeout or an interval.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", text)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

const redacted = "<redacted>"

// Secret holds a credential, such as the embedding backend API key. Every
// textual rendering yields a placeholder, so a logged or serialized config
// never exposes the value. Only Value returns the real string.
type Secret string

// IsSet reports whether a value was configured.
func (s Secret) IsSet() bool {
	return s != ""
}

// Value returns the real secret. Call it only at the point of use.
func (s Secret) Value() string {
	return string(s)
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	if !s.IsSet() {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer, covering %#v output.
func (s Secret) GoString() string {
	return "config.Secret(" + redacted + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting the raw value.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
