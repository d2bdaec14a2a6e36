// Package clock re-exports clockwork so scheduler loops can inject a
// fake time source in tests instead of sleeping in real time.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type Clock = clockwork.Clock

// Real returns the production clock.
func Real() Clock { return clockwork.NewRealClock() }

// NewFake returns a fake clock frozen at the fixed instant 2026-08-06
// 00:00:00 UTC, for tests that drive scheduler loops deterministically.
func NewFake() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(time.Date(2026, time.August, 6, 0, 0, 0, 0, time.UTC))
}
