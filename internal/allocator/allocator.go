// Package allocator implements the claim allocation engine: at most one
// claim per (event, requester), first-available selection, safe under
// concurrent invocation.  Serialization rests on the store, not on any
// in-process lock: the allocation transaction plus the unique
// (attendee, event) pair among reserved claims guarantee that of two
// racing reservations one commits and the other observes a conflict, which
// is resolved by returning the claim the winner reserved.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/claim-bot/internal/eligibility"
	"github.com/iliyamo/claim-bot/internal/model"
	"github.com/iliyamo/claim-bot/internal/profile"
	"github.com/iliyamo/claim-bot/internal/repository"
)

// ErrInvalidCode is returned when no event matches the requested code.
var ErrInvalidCode = errors.New("invalid event code")

// RejectError reports an eligibility rejection.  It carries the event so
// reply formatting can name it.
type RejectError struct {
	Kind  eligibility.Result
	Event *model.Event
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("requester not eligible for event %s: %s", e.Event.ID, e.Kind)
}

// NoClaimsError reports an exhausted claim pool for the event.
type NoClaimsError struct {
	Event *model.Event
}

func (e *NoClaimsError) Error() string {
	return fmt.Sprintf("no claims available for event %s", e.Event.ID)
}

// EventStore is the slice of event persistence the allocator needs.
type EventStore interface {
	GetByCode(ctx context.Context, code string) (*model.Event, error)
}

// ClaimStore is the slice of claim persistence the allocator needs.
// Allocate must be atomic: selection and reservation of the claim happen
// in one transaction, and a (attendee, event) uniqueness violation must
// surface as repository.ErrConflict.
type ClaimStore interface {
	FindReserved(ctx context.Context, eventID, username string) (*model.Claim, error)
	Allocate(ctx context.Context, eventID, username string) (*model.Claim, error)
}

// Grant pairs a reserved claim with its event for reply formatting.
type Grant struct {
	Claim *model.Claim
	Event *model.Event
}

// Allocator reserves claims for requesters.
type Allocator struct {
	events   EventStore
	claims   ClaimStore
	profiles profile.Loader
	now      func() time.Time
}

// New returns an Allocator over the given stores and profile loader.
func New(events EventStore, claims ClaimStore, profiles profile.Loader) *Allocator {
	return &Allocator{
		events:   events,
		claims:   claims,
		profiles: profiles,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reserve grants username one claim for the event identified by code.
//
// The operation is idempotent per (event, requester): when the requester
// already holds a reserved claim it is returned unchanged, so asking twice
// yields the same link, never two.  The profile lookup only happens after
// that short-circuit because it is the expensive step.  A conflict at
// commit time means a concurrent reservation satisfied this requester
// first; the existing claim is re-read once and returned.
func (a *Allocator) Reserve(ctx context.Context, code, username string) (*Grant, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	username = strings.ToLower(strings.TrimSpace(username))

	ev, err := a.events.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrEventNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}

	if cl, err := a.claims.FindReserved(ctx, ev.ID, username); err == nil {
		return &Grant{Claim: cl, Event: ev}, nil
	} else if !errors.Is(err, repository.ErrClaimNotFound) {
		return nil, err
	}

	p, err := a.profiles.Fetch(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load profile for %s: %w", username, err)
	}
	if result := eligibility.Evaluate(ev, p, a.now()); result != eligibility.Eligible {
		return nil, &RejectError{Kind: result, Event: ev}
	}

	cl, err := a.claims.Allocate(ctx, ev.ID, username)
	if errors.Is(err, repository.ErrNoneAvailable) {
		return nil, &NoClaimsError{Event: ev}
	}
	if errors.Is(err, repository.ErrConflict) {
		// Another allocation won the race for this requester; hand back
		// the claim it reserved.
		if existing, ferr := a.claims.FindReserved(ctx, ev.ID, username); ferr == nil {
			return &Grant{Claim: existing, Event: ev}, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &Grant{Claim: cl, Event: ev}, nil
}
