package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/claim-bot/internal/model"
)

// ClaimRepo provides persistence for claims, including the contended
// allocation path.  Allocation runs in a single transaction: the first
// unreserved claim of the event is locked with SELECT ... FOR UPDATE, the
// attendee row is fetched or created, and the claim is marked reserved.
// The unique key on (attendee_id, event_id) is the serialization anchor:
// a concurrent allocation for the same pair fails with a duplicate-key
// error, surfaced as ErrConflict so callers can fall back to the claim the
// winner reserved.
type ClaimRepo struct {
	db        *sql.DB
	attendees *AttendeeRepo
}

// NewClaimRepo returns a new ClaimRepo bound to the given database and
// attendee repository.
func NewClaimRepo(db *sql.DB, attendees *AttendeeRepo) *ClaimRepo {
	return &ClaimRepo{db: db, attendees: attendees}
}

// FindReserved returns the reserved claim held by username for the event,
// or ErrClaimNotFound when the attendee holds none.
func (r *ClaimRepo) FindReserved(ctx context.Context, eventID, username string) (*model.Claim, error) {
	const q = `SELECT c.id, c.event_id, c.attendee_id, c.link, c.reserved
	           FROM claims c
	           JOIN attendees a ON a.id = c.attendee_id
	           WHERE c.event_id = ? AND a.username = ? AND c.reserved = 1`
	var cl model.Claim
	var attendeeID sql.NullInt64
	err := r.db.QueryRowContext(ctx, q, eventID, username).
		Scan(&cl.ID, &cl.EventID, &attendeeID, &cl.Link, &cl.Reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, err
	}
	if attendeeID.Valid {
		id := uint64(attendeeID.Int64)
		cl.AttendeeID = &id
	}
	return &cl, nil
}

// Allocate reserves one currently-unreserved claim of the event for the
// given username.  Selection order is arbitrary.  Returns ErrNoneAvailable
// when the pool is exhausted and ErrConflict when the attendee already
// holds a claim for the event (unique pair violated by a concurrent
// allocation).
func (r *ClaimRepo) Allocate(ctx context.Context, eventID, username string) (*model.Claim, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var cl model.Claim
	err = tx.QueryRowContext(ctx,
		`SELECT id, event_id, link FROM claims
		 WHERE event_id = ? AND reserved = 0 AND attendee_id IS NULL
		 LIMIT 1 FOR UPDATE`, eventID).
		Scan(&cl.ID, &cl.EventID, &cl.Link)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoneAvailable
	}
	if err != nil {
		return nil, err
	}
	attendeeID, err := r.attendees.GetOrCreateTx(ctx, tx, username)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE claims SET attendee_id = ?, reserved = 1 WHERE id = ?`, attendeeID, cl.ID)
	if isDuplicate(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		if isDuplicate(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	committed = true
	cl.AttendeeID = &attendeeID
	cl.Reserved = true
	return &cl, nil
}

// CreateBulk inserts all seeds for the event in one transaction.  Seeds
// carrying a username are created already reserved for that attendee.
// Validation happens in the lifecycle layer; a duplicate link slipping
// through still fails the whole transaction with ErrConflict.
func (r *ClaimRepo) CreateBulk(ctx context.Context, eventID string, seeds []model.ClaimSeed) ([]model.Claim, error) {
	if len(seeds) == 0 {
		return []model.Claim{}, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	claims := make([]model.Claim, 0, len(seeds))
	for _, seed := range seeds {
		var attendeeID interface{}
		var attendeePtr *uint64
		reserved := false
		if seed.Username != "" {
			id, err := r.attendees.GetOrCreateTx(ctx, tx, seed.Username)
			if err != nil {
				return nil, err
			}
			attendeeID = id
			attendeePtr = &id
			reserved = true
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO claims (event_id, attendee_id, link, reserved) VALUES (?, ?, ?, ?)`,
			eventID, attendeeID, seed.Link, reserved)
		if isDuplicate(err) {
			return nil, ErrConflict
		}
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		claims = append(claims, model.Claim{
			ID:         uint64(id),
			EventID:    eventID,
			AttendeeID: attendeePtr,
			Link:       seed.Link,
			Reserved:   reserved,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return claims, nil
}

// GetByID fetches a claim by id.  Returns ErrClaimNotFound when absent.
func (r *ClaimRepo) GetByID(ctx context.Context, id uint64) (*model.Claim, error) {
	var cl model.Claim
	var attendeeID sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, attendee_id, link, reserved FROM claims WHERE id = ?`, id).
		Scan(&cl.ID, &cl.EventID, &attendeeID, &cl.Link, &cl.Reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, err
	}
	if attendeeID.Valid {
		aid := uint64(attendeeID.Int64)
		cl.AttendeeID = &aid
	}
	return &cl, nil
}

// ListByEvent returns all claims of an event.
func (r *ClaimRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Claim, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, attendee_id, link, reserved FROM claims WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	claims := make([]model.Claim, 0)
	for rows.Next() {
		var cl model.Claim
		var attendeeID sql.NullInt64
		if err := rows.Scan(&cl.ID, &cl.EventID, &attendeeID, &cl.Link, &cl.Reserved); err != nil {
			return nil, err
		}
		if attendeeID.Valid {
			aid := uint64(attendeeID.Int64)
			cl.AttendeeID = &aid
		}
		claims = append(claims, cl)
	}
	return claims, rows.Err()
}

// LinksByEvent returns the links of all existing claims of an event, used
// by bulk-load validation.
func (r *ClaimRepo) LinksByEvent(ctx context.Context, eventID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT link FROM claims WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	links := make([]string, 0)
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// ReservedUsernames returns the usernames already holding a reserved claim
// for the event, used by bulk-load validation of pre-assigned rows.
func (r *ClaimRepo) ReservedUsernames(ctx context.Context, eventID string) ([]string, error) {
	const q = `SELECT a.username FROM claims c
	           JOIN attendees a ON a.id = c.attendee_id
	           WHERE c.event_id = ? AND c.reserved = 1`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	usernames := make([]string, 0)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		usernames = append(usernames, u)
	}
	return usernames, rows.Err()
}

// Clear unreserves a claim, detaching its attendee.  This is the
// administrative escape hatch; the message path never unreserves.
func (r *ClaimRepo) Clear(ctx context.Context, id uint64) (*model.Claim, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE claims SET attendee_id = NULL, reserved = 0 WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Either absent or already clear; the read below settles it.
		_ = n
	}
	return r.GetByID(ctx, id)
}

// Delete removes a claim outright.  Returns ErrClaimNotFound when absent.
func (r *ClaimRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM claims WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrClaimNotFound
	}
	return nil
}
