package types

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

const redacted = "[REDACTED]"

// SecretString holds a credential such as a Redis password or a database
// DSN. Every rendering of it (fmt verbs, JSON, slog attributes) shows
// [REDACTED]; only Value returns the plain text.
type SecretString struct {
	value string
}

func NewSecretString(value string) SecretString {
	return SecretString{value: value}
}

// Value returns the secret for handing to a client library.
func (s SecretString) Value() string {
	return s.value
}

func (s SecretString) IsEmpty() bool {
	return s.value == ""
}

func (s SecretString) mask() string {
	if s.value == "" {
		return ""
	}
	return redacted
}

func (s SecretString) String() string { return s.mask() }

// GoString covers %#v, which would otherwise print the unexported field.
func (s SecretString) GoString() string { return fmt.Sprintf("SecretString(%q)", s.mask()) }

// LogValue keeps secrets out of structured logs.
func (s SecretString) LogValue() slog.Value { return slog.StringValue(s.mask()) }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.mask())
}

func (s *SecretString) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("secret must be a JSON string: %w", err)
	}
	s.value = value
	return nil
}

// Decode implements envconfig.Decoder so secrets can come from the environment.
func (s *SecretString) Decode(value string) error {
	s.value = value
	return nil
}

var (
	_ fmt.Stringer   = SecretString{}
	_ fmt.GoStringer = SecretString{}
	_ slog.LogValuer = SecretString{}
	_ json.Marshaler = SecretString{}
)
