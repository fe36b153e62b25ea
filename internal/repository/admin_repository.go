package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/claim-bot/internal/model"
)

// AdminRepo provides persistence for admins.  Message-channel commands are
// authorized by username alone; the password hash is only used by the HTTP
// API login.
type AdminRepo struct {
	db *sql.DB
}

// NewAdminRepo returns a new AdminRepo bound to the given database.
func NewAdminRepo(db *sql.DB) *AdminRepo { return &AdminRepo{db: db} }

// Create inserts a new admin.  passwordHash may be empty for admins that
// only use the message channel.  A duplicate username returns ErrConflict.
func (r *AdminRepo) Create(ctx context.Context, username, passwordHash string) (uint64, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var hash interface{}
	if passwordHash != "" {
		hash = passwordHash
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO admins (username, password_hash) VALUES (?, ?)`, username, hash)
	if isDuplicate(err) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUsername fetches an admin by normalized username.  Returns
// ErrAdminNotFound when absent.
func (r *AdminRepo) GetByUsername(ctx context.Context, username string) (*model.Admin, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var a model.Admin
	var hash sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM admins WHERE username = ?`, username).
		Scan(&a.ID, &a.Username, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdminNotFound
	}
	if err != nil {
		return nil, err
	}
	if hash.Valid {
		h := hash.String
		a.PasswordHash = &h
	}
	return &a, nil
}

// Exists reports whether an admin with the given username is registered.
func (r *AdminRepo) Exists(ctx context.Context, username string) (bool, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM admins WHERE username = ? LIMIT 1`, username).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
