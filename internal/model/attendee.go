package model

// Attendee is an external identity that may hold claims.  Attendees are
// created lazily the first time a claim is granted to their username and
// are never deleted by the bot.
//
// Fields:
//  ID       – primary key identifier.
//  Username – unique lower-cased external username.
type Attendee struct {
	ID       uint64 // attendees.id
	Username string // attendees.username
}
