package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenbank/onboarding/internal/customer"
)

var (
	// ErrNotFound is returned when an identity has no profile yet.
	ErrNotFound = errors.New("profile not found")
	// ErrProfileExists is returned when another writer created the profile first.
	ErrProfileExists = errors.New("profile already exists")
	// ErrAccountNumberTaken is returned when the account number collides.
	ErrAccountNumberTaken = errors.New("account number already taken")
)

const (
	uniqueViolation           = "23505"
	accountNumberConstraint   = "profiles_account_number_key"
	profileIdentityConstraint = "profiles_pkey"
)

// Repository persists profiles and their roles.
type Repository interface {
	FindByIdentity(ctx context.Context, identityID string) (customer.Profile, error)
	// Insert writes the profile and its role atomically.
	Insert(ctx context.Context, profile customer.Profile) error
	SetDocumentKey(ctx context.Context, identityID, key string) error
	// MarkCompleted stamps the profile as fully provisioned. It reports true
	// only for the call that moved it out of the incomplete state.
	MarkCompleted(ctx context.Context, identityID string, at time.Time) (bool, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed profile repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindByIdentity loads the profile and role of an identity.
func (r *PostgresRepository) FindByIdentity(ctx context.Context, identityID string) (customer.Profile, error) {
	id, err := uuid.Parse(identityID)
	if err != nil {
		return customer.Profile{}, ErrNotFound
	}
	var (
		p       customer.Profile
		address []byte
		role    *string
	)
	err = r.db.QueryRow(ctx, `SELECT p.email, p.first_name, p.last_name, p.display_name, p.phone,
            p.date_of_birth, p.address, p.account_type, p.account_number, p.document_key, p.created_at, p.completed_at, ur.role
        FROM profiles p
        LEFT JOIN user_roles ur ON ur.identity_id = p.identity_id
        WHERE p.identity_id = $1`, id).
		Scan(&p.Email, &p.FirstName, &p.LastName, &p.DisplayName, &p.Phone, &p.DateOfBirth, &address,
			&p.AccountType, &p.AccountNumber, &p.DocumentKey, &p.CreatedAt, &p.CompletedAt, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return customer.Profile{}, ErrNotFound
	}
	if err != nil {
		return customer.Profile{}, err
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &p.Address); err != nil {
			return customer.Profile{}, err
		}
	}
	if role != nil {
		p.Role = *role
	}
	p.IdentityID = identityID
	p.CreatedAt = p.CreatedAt.UTC()
	if p.CompletedAt != nil {
		completed := p.CompletedAt.UTC()
		p.CompletedAt = &completed
	}
	return p, nil
}

// Insert creates the profile and role in one transaction.
func (r *PostgresRepository) Insert(ctx context.Context, p customer.Profile) error {
	id, err := uuid.Parse(p.IdentityID)
	if err != nil {
		return err
	}
	address, err := json.Marshal(p.Address)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	cmd, err := tx.Exec(ctx, `INSERT INTO profiles (identity_id, email, first_name, last_name, display_name, phone,
            date_of_birth, address, account_type, account_number, document_key, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (identity_id) DO NOTHING`,
		id, p.Email, p.FirstName, p.LastName, p.DisplayName, p.Phone, p.DateOfBirth, address,
		p.AccountType, p.AccountNumber, p.DocumentKey, p.CreatedAt.UTC())
	if err != nil {
		return mapInsertError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrProfileExists
	}
	if _, err := tx.Exec(ctx, `INSERT INTO user_roles (identity_id, role) VALUES ($1, $2)
        ON CONFLICT (identity_id) DO NOTHING`, id, p.Role); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case accountNumberConstraint:
			return ErrAccountNumberTaken
		case profileIdentityConstraint:
			return ErrProfileExists
		}
	}
	return err
}

// SetDocumentKey records where the identity document was stored.
func (r *PostgresRepository) SetDocumentKey(ctx context.Context, identityID, key string) error {
	id, err := uuid.Parse(identityID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE profiles SET document_key = $2 WHERE identity_id = $1`, id, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted sets completed_at if it is still empty.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, identityID string, at time.Time) (bool, error) {
	id, err := uuid.Parse(identityID)
	if err != nil {
		return false, ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE profiles SET completed_at = $2
        WHERE identity_id = $1 AND completed_at IS NULL`, id, at.UTC())
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}
