package staging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable tier. Forms are kept as jsonb.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds the durable staging store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert writes the record, replacing the form of an existing one.
func (s *PostgresStore) Upsert(ctx context.Context, pending PendingSignup) error {
	id, err := uuid.Parse(pending.IdentityID)
	if err != nil {
		return err
	}
	form, err := json.Marshal(pending.Form)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `INSERT INTO pending_signups (identity_id, form, document_omitted, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        ON CONFLICT (identity_id) DO UPDATE
        SET form = EXCLUDED.form, document_omitted = EXCLUDED.document_omitted, updated_at = EXCLUDED.updated_at`,
		id, form, pending.DocumentOmitted, now)
	return err
}

// Get loads the record for identityID.
func (s *PostgresStore) Get(ctx context.Context, identityID string) (PendingSignup, error) {
	id, err := uuid.Parse(identityID)
	if err != nil {
		return PendingSignup{}, ErrNotFound
	}
	var (
		raw     []byte
		pending = PendingSignup{IdentityID: identityID}
	)
	err = s.db.QueryRow(ctx, `SELECT form, document_omitted, created_at, updated_at
        FROM pending_signups WHERE identity_id = $1`, id).
		Scan(&raw, &pending.DocumentOmitted, &pending.CreatedAt, &pending.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingSignup{}, ErrNotFound
	}
	if err != nil {
		return PendingSignup{}, err
	}
	if err := json.Unmarshal(raw, &pending.Form); err != nil {
		return PendingSignup{}, err
	}
	pending.CreatedAt = pending.CreatedAt.UTC()
	pending.UpdatedAt = pending.UpdatedAt.UTC()
	return pending, nil
}

// Delete removes the record if present.
func (s *PostgresStore) Delete(ctx context.Context, identityID string) error {
	id, err := uuid.Parse(identityID)
	if err != nil {
		return nil
	}
	_, err = s.db.Exec(ctx, `DELETE FROM pending_signups WHERE identity_id = $1`, id)
	return err
}

// PurgeOlderThan drops abandoned records last touched before cutoff and
// returns how many were removed.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM pending_signups WHERE updated_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
