// Package sqlstore implements push.Store on an embedded SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tinywideclouds/go-webpush-service/pkg/push"
)

//go:embed schema.sql
var schema string

// Store implements push.Store using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at dsn and applies the schema.
// dsn is e.g. "webpush.db" or ":memory:".
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Register inserts sub unless its endpoint is already present.
func (s *Store) Register(ctx context.Context, sub push.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO NOTHING
	`,
		uuid.NewString(),
		sub.UserID,
		sub.Endpoint,
		sub.Keys.P256dh,
		sub.Keys.Auth,
		s.now().UTC(),
	)
	if err != nil {
		return &push.StorageError{Op: "register", Err: err}
	}
	return nil
}

// ListByUser returns all subscriptions owned by userID.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]push.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth
		FROM push_subscriptions WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, &push.StorageError{Op: "list", Err: err}
	}
	defer func() { _ = rows.Close() }()

	subs := make([]push.Subscription, 0)
	for rows.Next() {
		var sub push.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth); err != nil {
			return nil, &push.StorageError{Op: "list", Err: fmt.Errorf("scanning row: %w", err)}
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, &push.StorageError{Op: "list", Err: fmt.Errorf("iterating rows: %w", err)}
	}
	return subs, nil
}

// DeleteByID removes the subscription; an absent id is not an error.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE id = ?", id); err != nil {
		return &push.StorageError{Op: "delete", Err: err}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
