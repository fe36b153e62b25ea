// Package lifecycle implements the administrative operations on events
// and claim pools: create and update event definitions, bulk-load claim
// links and pre-reserve claims for named attendees.  These paths are low
// contention; they only need transactional atomicity, which the claim
// store provides.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/claim-bot/internal/model"
	"github.com/iliyamo/claim-bot/internal/repository"
)

// ErrInvalidWindow is returned when an event's start date is not strictly
// before its expiry date.
var ErrInvalidWindow = errors.New("start date must be before expiry date")

// Violation is one invalid row of a bulk claim load.
type Violation struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BulkError aggregates every violation found while validating a bulk
// claim load.  Nothing is created when it is returned.  User-facing
// reports are capped via Report, the full list stays available for logs.
type BulkError struct {
	Violations []Violation
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk load rejected: %d invalid entries", len(e.Violations))
}

// Report returns at most limit violations for user-facing output.
func (e *BulkError) Report(limit int) []Violation {
	if limit <= 0 || len(e.Violations) <= limit {
		return e.Violations
	}
	return e.Violations[:limit]
}

// EventStore is the slice of event persistence the manager needs.
type EventStore interface {
	Create(ctx context.Context, ev *model.Event) error
	Update(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// ClaimStore is the slice of claim persistence the manager needs.
// CreateBulk must apply all seeds in one transaction or none.
type ClaimStore interface {
	LinksByEvent(ctx context.Context, eventID string) ([]string, error)
	ReservedUsernames(ctx context.Context, eventID string) ([]string, error)
	CreateBulk(ctx context.Context, eventID string, seeds []model.ClaimSeed) ([]model.Claim, error)
	Allocate(ctx context.Context, eventID, username string) (*model.Claim, error)
}

// Manager coordinates event and claim-pool administration.
type Manager struct {
	events EventStore
	claims ClaimStore
}

// New returns a Manager over the given stores.
func New(events EventStore, claims ClaimStore) *Manager {
	return &Manager{events: events, claims: claims}
}

// CreateEvent validates and creates a new event.  The id and code must be
// unused; repository.ErrConflict is passed through when either collides.
func (m *Manager) CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	ev.Code = strings.ToLower(strings.TrimSpace(ev.Code))
	if ev.ID == "" || ev.Name == "" || ev.Code == "" {
		return nil, errors.New("id, name and code are required")
	}
	if !ev.StartDate.Before(ev.ExpiryDate) {
		return nil, ErrInvalidWindow
	}
	if err := m.events.Create(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// UpdateEvent applies the provided fields to an existing event, leaving
// the rest untouched.  Returns repository.ErrEventNotFound when the id is
// unknown and ErrInvalidWindow when the resulting window is inverted.
func (m *Manager) UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error) {
	current, err := m.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	start, expiry := current.StartDate, current.ExpiryDate
	if upd.StartDate != nil {
		start = *upd.StartDate
	}
	if upd.ExpiryDate != nil {
		expiry = *upd.ExpiryDate
	}
	if !start.Before(expiry) {
		return nil, ErrInvalidWindow
	}
	return m.events.Update(ctx, id, upd)
}

// BulkLoadClaims validates and creates a batch of claims for an event.
// Validation collects every violation instead of failing on the first:
// empty links, links duplicated within the batch or against existing
// claims, and pre-assigned usernames that already hold a claim.  When any
// violation exists nothing is created and a *BulkError is returned;
// otherwise all claims are created in one transaction.
func (m *Manager) BulkLoadClaims(ctx context.Context, eventID string, seeds []model.ClaimSeed) ([]model.Claim, error) {
	if _, err := m.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	existingLinks, err := m.claims.LinksByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	reservedUsers, err := m.claims.ReservedUsernames(ctx, eventID)
	if err != nil {
		return nil, err
	}
	linkSeen := make(map[string]bool, len(existingLinks)+len(seeds))
	for _, l := range existingLinks {
		linkSeen[l] = true
	}
	userSeen := make(map[string]bool, len(reservedUsers)+len(seeds))
	for _, u := range reservedUsers {
		userSeen[u] = true
	}

	violations := make([]Violation, 0)
	normalized := make([]model.ClaimSeed, 0, len(seeds))
	for i, seed := range seeds {
		seed.Link = strings.TrimSpace(seed.Link)
		seed.Username = strings.ToLower(strings.TrimSpace(seed.Username))
		switch {
		case seed.Link == "":
			violations = append(violations, Violation{Index: i, Reason: "empty link"})
		case linkSeen[seed.Link]:
			violations = append(violations, Violation{Index: i, Reason: fmt.Sprintf("claim link %s already exists", seed.Link)})
		case seed.Username != "" && userSeen[seed.Username]:
			violations = append(violations, Violation{Index: i, Reason: fmt.Sprintf("username %s already has a reserved claim", seed.Username)})
		default:
			linkSeen[seed.Link] = true
			if seed.Username != "" {
				userSeen[seed.Username] = true
			}
			normalized = append(normalized, seed)
		}
	}
	if len(violations) > 0 {
		return nil, &BulkError{Violations: violations}
	}
	return m.claims.CreateBulk(ctx, eventID, normalized)
}

// ReserveResult summarizes a bulk pre-reservation.
type ReserveResult struct {
	Reserved int
	Failures []Violation
}

// ReserveClaims reserves one claim per username for the event, in order.
// Eligibility thresholds do not apply: this is an operator override.  A
// username already holding a claim counts as reserved (idempotent); an
// exhausted pool is reported per remaining username rather than aborting.
func (m *Manager) ReserveClaims(ctx context.Context, eventID string, usernames []string) (*ReserveResult, error) {
	if _, err := m.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	result := &ReserveResult{}
	for i, username := range usernames {
		username = strings.ToLower(strings.TrimSpace(username))
		if username == "" {
			result.Failures = append(result.Failures, Violation{Index: i, Reason: "empty username"})
			continue
		}
		_, err := m.claims.Allocate(ctx, eventID, username)
		switch {
		case err == nil:
			result.Reserved++
		case errors.Is(err, repository.ErrConflict):
			// Already holds one; treat as satisfied.
			result.Reserved++
		case errors.Is(err, repository.ErrNoneAvailable):
			result.Failures = append(result.Failures, Violation{Index: i, Reason: "no claims available"})
		default:
			return nil, err
		}
	}
	return result, nil
}

// EventWindowOpen reports whether the event accepts claims at the given
// time.  Used by handlers that want to annotate listings.
func EventWindowOpen(ev *model.Event, now time.Time) bool {
	return ev.Started(now) && !ev.Expired(now)
}
