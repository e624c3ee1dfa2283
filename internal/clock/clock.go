// Package clock abstracts time for deterministic scheduling and tests.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock returns the current time; jobs derive every date window from it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by the wall clock in UTC.
func NewSystemClock() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
