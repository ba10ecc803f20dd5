// Package idgen provides pluggable id generation for domcanvas.
//
// Constructors accept a Generator, making the id strategy a startup-time
// decision: layer ids, journal rows and record batches all default to
// UUIDv7 with a type-scoped prefix.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
// Time-sortable and globally unique.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every id.
// Used for type-scoped identifiers ("lyr_", "bat_", "cmd_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the package default: bare UUIDv7.
var Default Generator = UUIDv7()

// New produces an id using the Default generator.
func New() string {
	return Default()
}
