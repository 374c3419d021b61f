package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength bounds cache and dependency names.
const MaxNameLength = 64

// KeyValidationConfig contains configuration for cache key validation.
type KeyValidationConfig struct {
	ReservedPatterns  []string
	MaxKeyLength      int
	AllowEmpty        bool
	AllowControlChars bool
	AllowWhitespace   bool
}

// DefaultKeyValidationConfig rejects empty keys, control characters and
// keys longer than 512 bytes. Feed keys often carry place names, so
// whitespace is allowed.
func DefaultKeyValidationConfig() KeyValidationConfig {
	return KeyValidationConfig{
		MaxKeyLength:    512,
		AllowWhitespace: true,
	}
}

// keyRule inspects a non-empty key and returns the reason it is rejected.
type keyRule func(key string) string

// KeyValidator checks cache keys against an ordered list of rules built
// from a KeyValidationConfig.
type KeyValidator struct {
	allowEmpty bool
	rules      []keyRule
}

func NewKeyValidator(cfg KeyValidationConfig) *KeyValidator {
	v := &KeyValidator{allowEmpty: cfg.AllowEmpty}

	if cfg.MaxKeyLength > 0 {
		limit := cfg.MaxKeyLength
		v.rules = append(v.rules, func(key string) string {
			if len(key) > limit {
				return fmt.Sprintf("key length %d exceeds maximum %d bytes", len(key), limit)
			}
			return ""
		})
	}

	v.rules = append(v.rules, func(key string) string {
		if !utf8.ValidString(key) {
			return "key contains invalid UTF-8"
		}
		return ""
	})

	if !cfg.AllowControlChars || !cfg.AllowWhitespace {
		controls, spaces := !cfg.AllowControlChars, !cfg.AllowWhitespace
		v.rules = append(v.rules, func(key string) string {
			for i, r := range key {
				if controls && (r < 32 || r == 127) {
					return fmt.Sprintf("key contains control character at position %d", i)
				}
				if spaces && unicode.IsSpace(r) {
					return fmt.Sprintf("key contains whitespace at position %d", i)
				}
			}
			return ""
		})
	}

	if len(cfg.ReservedPatterns) > 0 {
		reserved := append([]string(nil), cfg.ReservedPatterns...)
		v.rules = append(v.rules, func(key string) string {
			for _, p := range reserved {
				if strings.Contains(key, p) {
					return fmt.Sprintf("key contains reserved pattern %q", p)
				}
			}
			return ""
		})
	}

	return v
}

// Validate returns an error wrapping ErrInvalidKey for the first rule key
// breaks.
func (v *KeyValidator) Validate(key string) error {
	if key == "" {
		if v.allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for _, rule := range v.rules {
		if reason := rule(key); reason != "" {
			return fmt.Errorf("%w: %s", ErrInvalidKey, reason)
		}
	}
	return nil
}

// DefaultKeyValidator is the default key validator instance.
var DefaultKeyValidator = NewKeyValidator(DefaultKeyValidationConfig())

// ValidateKey validates a key using the default validator.
func ValidateKey(key string) error {
	return DefaultKeyValidator.Validate(key)
}

func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}

// ValidateName checks a cache or dependency name. Names are lowercase ASCII
// letters, digits, '-', '_' and '.', start with a letter or digit, and never
// contain ':' since they prefix snapshot keys.
func ValidateName(kind, name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: %s name must not be empty", ErrInvalidName, kind)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: %s name %q exceeds %d bytes", ErrInvalidName, kind, name, MaxNameLength)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		alnum := ('a' <= c && c <= 'z') || ('0' <= c && c <= '9')
		if alnum || (i > 0 && (c == '-' || c == '_' || c == '.')) {
			continue
		}
		return fmt.Errorf("%w: %s name %q has invalid character %q at position %d", ErrInvalidName, kind, name, c, i)
	}
	return nil
}
