package bot

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/claim-bot/internal/inbox"
)

// Supervisor owns the outer retry loop around the inbound stream.  It
// consumes messages one at a time in arrival order, isolates per-message
// failures inside the dispatcher, and reopens the stream after a fixed
// backoff whenever consumption errors out.  It never stops on its own;
// only context cancellation ends the loop, and cancellation is only
// observed between messages so a message in flight is handled to
// completion.
type Supervisor struct {
	source     inbox.Source
	dispatcher *Dispatcher
	backoff    time.Duration
}

// NewSupervisor constructs a Supervisor.  backoff defaults to one second
// when non-positive.
func NewSupervisor(source inbox.Source, dispatcher *Dispatcher, backoff time.Duration) *Supervisor {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Supervisor{source: source, dispatcher: dispatcher, backoff: backoff}
}

// Run blocks until ctx is cancelled, returning ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := s.source.Stream(ctx)
		if err != nil {
			log.Printf("bot: opening inbound stream failed: %v; retrying in %s", err, s.backoff)
		} else {
			if err := s.consume(ctx, msgs); err != nil {
				return err
			}
			log.Printf("bot: inbound stream closed; reopening in %s", s.backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff):
		}
	}
}

// consume drains the stream channel until it closes or ctx is cancelled.
func (s *Supervisor) consume(ctx context.Context, msgs <-chan inbox.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			s.dispatcher.Handle(ctx, msg)
		}
	}
}
