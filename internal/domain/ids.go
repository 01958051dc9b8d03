// Package domain holds the aggregates and value types shared by every
// component of the extraction engine: campaigns, tasks, places and reviews.
package domain

import (
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid"
)

// ID is a 26-character, lexicographically sortable textual identifier.
// Sorting ID values by string comparison sorts them by creation time.
type ID string

// NewID generates a fresh, time-ordered ID.
func NewID() ID {
	return ID(ulid.MustNew(ulid.Now(), ulid.Monotonic(rand.Reader, 0)).String())
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Empty reports whether the ID is the zero value.
func (id ID) Empty() bool { return id == "" }

// ParseID validates that s looks like a well-formed ID.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if _, err := ulid.ParseStrict(s); err != nil {
		return "", err
	}
	return ID(s), nil
}
