package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// AttendeeRepo provides persistence for attendees.  Attendees are created
// lazily the first time a claim is granted, always inside the allocation
// transaction, so the only write path is GetOrCreateTx.
type AttendeeRepo struct {
	db *sql.DB
}

// NewAttendeeRepo returns a new AttendeeRepo bound to the given database.
func NewAttendeeRepo(db *sql.DB) *AttendeeRepo { return &AttendeeRepo{db: db} }

// GetOrCreateTx returns the id of the attendee with the given username,
// inserting the row if it does not exist yet.  The username is normalized
// to lower case.  A concurrent insert racing this one is absorbed by
// re-reading after a duplicate-key error.
func (r *AttendeeRepo) GetOrCreateTx(ctx context.Context, tx *sql.Tx, username string) (uint64, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var id uint64
	err := tx.QueryRowContext(ctx, `SELECT id FROM attendees WHERE username = ?`, username).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO attendees (username) VALUES (?)`, username)
	if isDuplicate(err) {
		// Lost the race; the row exists now.
		err = tx.QueryRowContext(ctx, `SELECT id FROM attendees WHERE username = ?`, username).Scan(&id)
		return id, err
	}
	if err != nil {
		return 0, err
	}
	last, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(last), nil
}
