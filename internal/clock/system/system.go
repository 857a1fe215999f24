// Package system provides the wall clock used to stamp registrations.
package system

import (
	"time"

	"github.com/JakeFAU/botrelay/internal/relay"
)

var _ relay.Clock = Clock{}

// Clock implements relay.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to milliseconds, matching the
// precision registration timestamps are serialized with.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
