// Package system provides the wall clock used outside of tests.
package system

import (
	"time"

	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/library"
)

var (
	_ crawler.Clock = Clock{}
	_ library.Clock = Clock{}
)

// Clock reports UTC wall time.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
