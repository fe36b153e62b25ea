// Package eligibility decides whether a claim request may proceed.  It is
// a pure function over the event definition, the requester profile and the
// current time; it performs no I/O so the allocation engine can evaluate
// it inside its own flow and tests can cover every branch directly.
package eligibility

import (
	"time"

	"github.com/iliyamo/claim-bot/internal/model"
	"github.com/iliyamo/claim-bot/internal/profile"
)

// Result is the outcome of an eligibility evaluation.
type Result int

const (
	Eligible Result = iota
	EventNotStarted
	EventExpired
	InsufficientKarma
	InsufficientAge
)

// String returns a short name for the result, used in logs.
func (r Result) String() string {
	switch r {
	case Eligible:
		return "eligible"
	case EventNotStarted:
		return "event_not_started"
	case EventExpired:
		return "event_expired"
	case InsufficientKarma:
		return "insufficient_karma"
	case InsufficientAge:
		return "insufficient_age"
	}
	return "unknown"
}

// Evaluate checks the requester against the event in a fixed order: window
// checks first (not started, then expired), then karma, then account age.
// The order matters: an expired event must reject with EventExpired even
// when the requester would also fail a threshold check.  A threshold of
// zero means no restriction and always passes.
func Evaluate(ev *model.Event, p profile.Profile, now time.Time) Result {
	if !ev.Started(now) {
		return EventNotStarted
	}
	if ev.Expired(now) {
		return EventExpired
	}
	if ev.MinimumKarma > 0 && p.Karma() < ev.MinimumKarma {
		return InsufficientKarma
	}
	if ev.MinimumAge > 0 && p.AgeDays(now) < ev.MinimumAge {
		return InsufficientAge
	}
	return Eligible
}
