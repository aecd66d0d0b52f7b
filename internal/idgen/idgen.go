// Package idgen generates image identifiers.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns RFC 9562 version 7 UUIDs: a millisecond timestamp followed
// by random bits, so ids sort roughly by creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Sequence returns prefix-1, prefix-2, ... Deterministic, for tests and seeding.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// Default is the generator used when none is injected.
var Default Generator = UUIDv7()

