package util

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// entropy is shared by every request goroutine, hence the locked reader.
var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

// NewID returns a ULID string. IDs generated in the same millisecond stay ordered.
func NewID() string {
	return ulid.MustNew(ulid.Now(), entropy).String()
}
