package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/claim-bot/internal/model"
)

// EventRepo provides persistence for events.  Event ids are supplied by
// operators and immutable; codes are stored lower-cased and carry a unique
// key, so a duplicate create surfaces as ErrConflict rather than a second
// row.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, name, description, code, start_date, expiry_date, minimum_age, minimum_karma`

func scanEvent(row *sql.Row) (*model.Event, error) {
	var ev model.Event
	err := row.Scan(&ev.ID, &ev.Name, &ev.Description, &ev.Code,
		&ev.StartDate, &ev.ExpiryDate, &ev.MinimumAge, &ev.MinimumKarma)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Create inserts a new event.  The code is normalized to lower case before
// insertion.  A duplicate id or code returns ErrConflict.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
	ev.Code = strings.ToLower(strings.TrimSpace(ev.Code))
	const q = `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, ev.ID, ev.Name, ev.Description, ev.Code,
		ev.StartDate.UTC(), ev.ExpiryDate.UTC(), ev.MinimumAge, ev.MinimumKarma)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// Update applies the non-nil fields of upd to the event with the given id
// and returns the updated row.  It returns ErrEventNotFound when the id
// does not exist and ErrConflict when a new code collides with another
// event.
func (r *EventRepo) Update(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error) {
	sets := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Code != nil {
		sets = append(sets, "code = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(*upd.Code)))
	}
	if upd.StartDate != nil {
		sets = append(sets, "start_date = ?")
		args = append(args, upd.StartDate.UTC())
	}
	if upd.ExpiryDate != nil {
		sets = append(sets, "expiry_date = ?")
		args = append(args, upd.ExpiryDate.UTC())
	}
	if upd.MinimumAge != nil {
		sets = append(sets, "minimum_age = ?")
		args = append(args, *upd.MinimumAge)
	}
	if upd.MinimumKarma != nil {
		sets = append(sets, "minimum_karma = ?")
		args = append(args, *upd.MinimumKarma)
	}
	if len(sets) > 0 {
		args = append(args, id)
		q := "UPDATE events SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		res, err := r.db.ExecContext(ctx, q, args...)
		if isDuplicate(err) {
			return nil, ErrConflict
		}
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			// Zero rows can also mean an identical update; distinguish by
			// falling through to the read below.
			_ = n
		}
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches an event by id.  Returns ErrEventNotFound when absent.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	ev, err := scanEvent(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// GetByCode fetches an event by its normalized code.  Returns
// ErrEventNotFound when absent.
func (r *EventRepo) GetByCode(ctx context.Context, code string) (*model.Event, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	const q = `SELECT ` + eventColumns + ` FROM events WHERE code = ?`
	ev, err := scanEvent(r.db.QueryRowContext(ctx, q, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// List returns all events ordered by start date.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events ORDER BY start_date`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]model.Event, 0)
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Description, &ev.Code,
			&ev.StartDate, &ev.ExpiryDate, &ev.MinimumAge, &ev.MinimumKarma); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
