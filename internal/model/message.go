package model

import "time"

// InboundMessage records one processed message from the transport.  The ID
// is the transport-assigned message id and doubles as the idempotency key:
// its existence in the ledger means the message has already been handled
// and a redelivery must be skipped.
//
// Fields:
//  ID       – transport message id (idempotency key).
//  Username – sender username, lower-cased.
//  Created  – transport timestamp of the message.
//  Subject  – message subject, may be empty.
//  Body     – raw message body.
type InboundMessage struct {
	ID       string    // inbound_messages.id
	Username string    // inbound_messages.username
	Created  time.Time // inbound_messages.created
	Subject  string    // inbound_messages.subject
	Body     string    // inbound_messages.body
}

// OutboundMessage records one reply sent by the bot, for audit.  ClaimID
// links the reply to the claim it granted, when there is one.
//
// Fields:
//  ID       – transport id of the sent reply.
//  Username – recipient username.
//  Created  – time the reply was sent.
//  Body     – reply body.
//  ClaimID  – granted claim, nil when the reply carries no claim.
type OutboundMessage struct {
	ID       string    // outbound_messages.id
	Username string    // outbound_messages.username
	Created  time.Time // outbound_messages.created
	Body     string    // outbound_messages.body
	ClaimID  *uint64   // outbound_messages.claim_id (nullable)
}
