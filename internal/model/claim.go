package model

// Claim is a single allocable link belonging to an event.  A claim is
// created unreserved and transitions to reserved exactly once, when it is
// assigned to an attendee.  It never reverts on the message path; only the
// administrative clear operation can unreserve it.
//
// Fields:
//  ID         – primary key identifier.
//  EventID    – owning event.
//  AttendeeID – attendee holding the claim, nil while unreserved.
//  Link       – the claim link handed out to the attendee; unique.
//  Reserved   – whether the claim has been allocated.
type Claim struct {
	ID         uint64  // claims.id
	EventID    string  // claims.event_id
	AttendeeID *uint64 // claims.attendee_id (nullable)
	Link       string  // claims.link
	Reserved   bool    // claims.reserved
}

// ClaimSeed is one row of a bulk claim load.  Username is optional; when
// present the claim is created already reserved for that attendee.
type ClaimSeed struct {
	Link     string
	Username string
}
