package model

import "time"

// Event is a time-bounded pool of claimable links identified by a
// human-readable code.  Attendees request claims by messaging the bot
// with the event code.
//
// Fields:
//  ID           – operator-supplied identifier, immutable.
//  Name         – display name used in replies.
//  Description  – free-form description.
//  Code         – unique lower-cased code recognized in message bodies.
//  StartDate    – UTC time the event opens for claims.
//  ExpiryDate   – UTC time the event stops accepting claims.
//  MinimumAge   – minimum account age in days (0 = no restriction).
//  MinimumKarma – minimum combined karma (0 = no restriction).
type Event struct {
	ID           string    // events.id
	Name         string    // events.name
	Description  string    // events.description
	Code         string    // events.code
	StartDate    time.Time // events.start_date
	ExpiryDate   time.Time // events.expiry_date
	MinimumAge   int       // events.minimum_age
	MinimumKarma int       // events.minimum_karma
}

// Started reports whether the event window has opened at the given time.
func (e *Event) Started(now time.Time) bool {
	return e.StartDate.Before(now)
}

// Expired reports whether the event window has closed at the given time.
func (e *Event) Expired(now time.Time) bool {
	return e.ExpiryDate.Before(now)
}

// EventUpdate carries a partial update for an event.  Nil fields are left
// untouched; the event id itself is immutable.
type EventUpdate struct {
	Name         *string
	Description  *string
	Code         *string
	StartDate    *time.Time
	ExpiryDate   *time.Time
	MinimumAge   *int
	MinimumKarma *int
}
