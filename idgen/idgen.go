// Package idgen provides the ID strategies used by capwatch.
//
// Sessions and results carry UUIDv7 identifiers so that log lines and sink
// payloads sort by creation time without a separate timestamp index.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// Session and Result are the typed generators used by the pipeline.
var (
	Session = Prefixed("ses_", Default)
	Result  = Prefixed("res_", Default)
)

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string, ignoring a known type prefix.
func Parse(s string) (string, error) {
	raw := s
	for _, p := range []string{"ses_", "res_"} {
		if len(raw) > len(p) && raw[:len(p)] == p {
			raw = raw[len(p):]
			break
		}
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", s, err)
	}
	return u.String(), nil
}
