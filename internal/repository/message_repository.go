package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/claim-bot/internal/model"
)

// MessageRepo is the idempotency ledger.  Every processed inbound message
// and every sent reply is recorded under its transport id; both tables are
// write-once with no delete path.  Inserting a key twice returns
// ErrConflict, which callers treat as "already handled, skip" rather than
// a failure.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo returns a new MessageRepo bound to the given database.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

// HasProcessed reports whether the inbound message id is already in the
// ledger.
func (r *MessageRepo) HasProcessed(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM inbound_messages WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordInbound writes an inbound message record.  A duplicate id returns
// ErrConflict: two pollers racing on the same redelivered message, only
// one wins.
func (r *MessageRepo) RecordInbound(ctx context.Context, msg model.InboundMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO inbound_messages (id, username, created, subject, body) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.Username, msg.Created.UTC(), msg.Subject, msg.Body)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// RecordOutbound writes an outbound reply record, optionally linked to the
// claim the reply granted.  A duplicate id returns ErrConflict.
func (r *MessageRepo) RecordOutbound(ctx context.Context, msg model.OutboundMessage) error {
	var claimID interface{}
	if msg.ClaimID != nil {
		claimID = *msg.ClaimID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outbound_messages (id, username, created, body, claim_id) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.Username, msg.Created.UTC(), msg.Body, claimID)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}
