// Package inbox abstracts the inbound message channel.  The bot consumes
// an ordered, at-least-once stream of messages and answers each with
// exactly one reply; redelivery after a crash is expected and absorbed by
// the idempotency ledger, not by the transport.
package inbox

import (
	"context"
	"time"
)

// Message is one inbound message from the transport.
type Message struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Created time.Time `json:"created"`
}

// SentMessage describes a reply after it has been handed to the transport.
type SentMessage struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Body    string    `json:"body"`
	Created time.Time `json:"created"`
}

// Source produces the inbound stream.  Stream returns a channel that
// closes when the underlying connection is lost; the supervisor reopens
// it after a backoff.  Messages not yet marked read are redelivered on
// the next stream.
type Source interface {
	Stream(ctx context.Context) (<-chan Message, error)
}

// Replier sends replies and acknowledges messages.  MarkRead is the
// terminal acknowledgement: until it is called the transport may deliver
// the message again.
type Replier interface {
	Reply(ctx context.Context, orig Message, body string) (SentMessage, error)
	MarkRead(ctx context.Context, orig Message) error
}

// Transport combines both directions of the message channel.
type Transport interface {
	Source
	Replier
}
