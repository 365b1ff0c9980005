// Package idx mints the ULID identifiers used for user rows, refresh-token
// rows and request ids.
package idx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Monotonic entropy keeps ids minted within one millisecond ordered.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh ID stamped with the wall clock.
func New() ID { return NewAt(time.Now()) }

// NewAt returns a fresh ID stamped with t. Safe for concurrent use.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String())
}

func (id ID) String() string { return string(id) }
