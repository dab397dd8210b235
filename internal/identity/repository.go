package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists identities and their pending confirmation codes.
type Repository interface {
	// Create inserts ident unless the email is already present. It returns the
	// stored row and whether this call created it.
	Create(ctx context.Context, ident Identity) (Identity, bool, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	FindByEmail(ctx context.Context, email string) (Identity, error)
	UpdatePasswordHash(ctx context.Context, id string, hash []byte) error
	MarkConfirmed(ctx context.Context, id string, at time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	BumpTokenVersion(ctx context.Context, id string) (int, error)

	SaveCode(ctx context.Context, code ConfirmationCode) error
	FindCode(ctx context.Context, identityID string) (ConfirmationCode, error)
	IncrementCodeAttempts(ctx context.Context, identityID string) error
	DeleteCode(ctx context.Context, identityID string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const identityColumns = `id, email, password_hash, confirmed_at, token_version, last_login, created_at, updated_at`

// Create inserts the identity. Concurrent calls for one email converge on the
// unique email index: the loser re-reads the winner's row.
func (r *PostgresRepository) Create(ctx context.Context, ident Identity) (Identity, bool, error) {
	id, err := uuid.Parse(ident.ID)
	if err != nil {
		return Identity{}, false, err
	}
	cmd, err := r.db.Exec(ctx, `INSERT INTO identities (id, email, password_hash, token_version, created_at, updated_at)
        VALUES ($1, $2, $3, 0, $4, $4)
        ON CONFLICT (email) DO NOTHING`, id, ident.Email, ident.PasswordHash, ident.CreatedAt.UTC())
	if err != nil {
		return Identity{}, false, err
	}
	stored, err := r.FindByEmail(ctx, ident.Email)
	if err != nil {
		return Identity{}, false, err
	}
	return stored, cmd.RowsAffected() == 1, nil
}

// FindByID fetches an identity by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Identity, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, ErrNotFound
	}
	return scanIdentity(r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, uid))
}

// FindByEmail fetches an identity by its normalized email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Identity, error) {
	return scanIdentity(r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email))
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var (
		id    uuid.UUID
		ident Identity
	)
	err := row.Scan(&id, &ident.Email, &ident.PasswordHash, &ident.ConfirmedAt, &ident.TokenVersion,
		&ident.LastLogin, &ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, err
	}
	ident.ID = id.String()
	ident.CreatedAt = ident.CreatedAt.UTC()
	ident.UpdatedAt = ident.UpdatedAt.UTC()
	return ident, nil
}

// UpdatePasswordHash replaces the password of an unconfirmed identity.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id string, hash []byte) error {
	return r.exec(ctx, `UPDATE identities SET password_hash = $2, updated_at = now()
        WHERE id = $1 AND confirmed_at IS NULL`, id, hash)
}

// MarkConfirmed records the confirmation time once.
func (r *PostgresRepository) MarkConfirmed(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE identities SET confirmed_at = COALESCE(confirmed_at, $2), updated_at = now()
        WHERE id = $1`, id, at.UTC())
}

// RecordLogin stores the last successful sign-in.
func (r *PostgresRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE identities SET last_login = $2 WHERE id = $1`, id, at.UTC())
}

// BumpTokenVersion invalidates every token issued so far.
func (r *PostgresRepository) BumpTokenVersion(ctx context.Context, id string) (int, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return 0, ErrNotFound
	}
	var version int
	err = r.db.QueryRow(ctx, `UPDATE identities SET token_version = token_version + 1, updated_at = now()
        WHERE id = $1 RETURNING token_version`, uid).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return version, err
}

// SaveCode replaces any previous code for the identity.
func (r *PostgresRepository) SaveCode(ctx context.Context, code ConfirmationCode) error {
	uid, err := uuid.Parse(code.IdentityID)
	if err != nil {
		return ErrNotFound
	}
	_, err = r.db.Exec(ctx, `INSERT INTO confirmation_codes (identity_id, code_hash, attempts, expires_at, sent_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (identity_id) DO UPDATE
        SET code_hash = EXCLUDED.code_hash, attempts = EXCLUDED.attempts,
            expires_at = EXCLUDED.expires_at, sent_at = EXCLUDED.sent_at`,
		uid, code.CodeHash, code.Attempts, code.ExpiresAt.UTC(), code.SentAt.UTC())
	return err
}

// FindCode fetches the live code for the identity.
func (r *PostgresRepository) FindCode(ctx context.Context, identityID string) (ConfirmationCode, error) {
	uid, err := uuid.Parse(identityID)
	if err != nil {
		return ConfirmationCode{}, ErrNotFound
	}
	code := ConfirmationCode{IdentityID: identityID}
	err = r.db.QueryRow(ctx, `SELECT code_hash, attempts, expires_at, sent_at
        FROM confirmation_codes WHERE identity_id = $1`, uid).
		Scan(&code.CodeHash, &code.Attempts, &code.ExpiresAt, &code.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConfirmationCode{}, ErrNotFound
	}
	if err != nil {
		return ConfirmationCode{}, err
	}
	code.ExpiresAt = code.ExpiresAt.UTC()
	code.SentAt = code.SentAt.UTC()
	return code, nil
}

// IncrementCodeAttempts counts a failed verification.
func (r *PostgresRepository) IncrementCodeAttempts(ctx context.Context, identityID string) error {
	return r.exec(ctx, `UPDATE confirmation_codes SET attempts = attempts + 1 WHERE identity_id = $1`, identityID)
}

// DeleteCode removes the code. Deleting a missing code is not an error.
func (r *PostgresRepository) DeleteCode(ctx context.Context, identityID string) error {
	uid, err := uuid.Parse(identityID)
	if err != nil {
		return nil
	}
	_, err = r.db.Exec(ctx, `DELETE FROM confirmation_codes WHERE identity_id = $1`, uid)
	return err
}

func (r *PostgresRepository) exec(ctx context.Context, sql, id string, args ...any) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, sql, append([]any{uid}, args...)...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
