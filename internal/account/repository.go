package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for account persistence.
type Repository interface {
	// Get retrieves an account by ID.
	// Returns ErrAccountNotFound if it does not exist.
	Get(ctx context.Context, id string) (*Account, error)

	// GetByLinkCode retrieves the account holding a session-correlation code.
	GetByLinkCode(ctx context.Context, code string) (*Account, error)

	// Create inserts a new account. The ID is generated if empty.
	Create(ctx context.Context, acc *Account) error

	// Rename updates an account's display name. Used to promote a
	// placeholder once linking resolves the real identity.
	Rename(ctx context.Context, id, name string) error

	// Delete removes an account. Foreign keys cascade: the account's
	// device links and linked identities go with it.
	Delete(ctx context.Context, id string) error
}

// IdentityRepository defines the interface for linked-identity persistence.
type IdentityRepository interface {
	// GetByExternalUserID retrieves the identity for an external user id.
	// Returns ErrIdentityNotFound if none exists.
	GetByExternalUserID(ctx context.Context, externalUserID string) (*LinkedIdentity, error)

	// GetByAccessToken retrieves the identity holding a bearer token.
	GetByAccessToken(ctx context.Context, token string) (*LinkedIdentity, error)

	// Create inserts a new identity. The ID is generated if empty.
	Create(ctx context.Context, ident *LinkedIdentity) error

	// Update rewrites the mutable fields (profile and token material).
	Update(ctx context.Context, ident *LinkedIdentity) error

	// ExistsForAccount reports whether any identity references the account.
	ExistsForAccount(ctx context.Context, accountID string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed account repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get retrieves an account by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Account, error) {
	return r.getWhere(ctx, "id = ?", id)
}

// GetByLinkCode retrieves the account holding a session-correlation code.
func (r *SQLiteRepository) GetByLinkCode(ctx context.Context, code string) (*Account, error) {
	return r.getWhere(ctx, "link_code = ?", code)
}

func (r *SQLiteRepository) getWhere(ctx context.Context, where string, arg any) (*Account, error) {
	var a Account
	var linkCode sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, link_code, created_at, updated_at FROM accounts WHERE "+where, arg,
	).Scan(&a.ID, &a.Name, &linkCode, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}

	if linkCode.Valid {
		a.LinkCode = linkCode.String
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled

	return &a, nil
}

// Create inserts a new account.
func (r *SQLiteRepository) Create(ctx context.Context, acc *Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, link_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		acc.ID,
		acc.Name,
		nullString(acc.LinkCode),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAccountExists
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	return nil
}

// Rename updates an account's display name.
func (r *SQLiteRepository) Rename(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE accounts SET name = ?, updated_at = ? WHERE id = ?",
		name, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("renaming account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Delete removes an account; device links and identities cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// SQLiteIdentityRepository implements IdentityRepository using SQLite.
type SQLiteIdentityRepository struct {
	db *sql.DB
}

// NewSQLiteIdentityRepository creates a new SQLite-backed identity repository.
func NewSQLiteIdentityRepository(db *sql.DB) *SQLiteIdentityRepository {
	return &SQLiteIdentityRepository{db: db}
}

// identityColumns is the column list shared by identity SELECTs.
const identityColumns = `id, account_id, external_user_id, email, postal_code,
	access_token, refresh_token, created_at, updated_at`

// GetByExternalUserID retrieves the identity for an external user id.
func (r *SQLiteIdentityRepository) GetByExternalUserID(ctx context.Context, externalUserID string) (*LinkedIdentity, error) {
	return r.getWhere(ctx, "external_user_id = ?", externalUserID)
}

// GetByAccessToken retrieves the identity holding a bearer token.
func (r *SQLiteIdentityRepository) GetByAccessToken(ctx context.Context, token string) (*LinkedIdentity, error) {
	return r.getWhere(ctx, "access_token = ?", token)
}

func (r *SQLiteIdentityRepository) getWhere(ctx context.Context, where string, arg any) (*LinkedIdentity, error) {
	var ident LinkedIdentity
	var email, postalCode, accessToken, refreshToken sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT "+identityColumns+" FROM linked_identities WHERE "+where, arg,
	).Scan(&ident.ID, &ident.AccountID, &ident.ExternalUserID,
		&email, &postalCode, &accessToken, &refreshToken, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("querying linked identity: %w", err)
	}

	ident.Email = email.String
	ident.PostalCode = postalCode.String
	ident.AccessToken = accessToken.String
	ident.RefreshToken = refreshToken.String
	ident.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	ident.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled

	return &ident, nil
}

// Create inserts a new identity.
func (r *SQLiteIdentityRepository) Create(ctx context.Context, ident *LinkedIdentity) error {
	if ident.ID == "" {
		ident.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	ident.CreatedAt = now
	ident.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO linked_identities (id, account_id, external_user_id, email,
			postal_code, access_token, refresh_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ident.ID,
		ident.AccountID,
		ident.ExternalUserID,
		nullString(ident.Email),
		nullString(ident.PostalCode),
		nullString(ident.AccessToken),
		nullString(ident.RefreshToken),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrIdentityExists
		}
		return fmt.Errorf("inserting linked identity: %w", err)
	}

	return nil
}

// Update rewrites the mutable fields of an identity.
func (r *SQLiteIdentityRepository) Update(ctx context.Context, ident *LinkedIdentity) error {
	ident.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE linked_identities
		SET account_id = ?, email = ?, postal_code = ?,
			access_token = ?, refresh_token = ?, updated_at = ?
		WHERE id = ?`,
		ident.AccountID,
		nullString(ident.Email),
		nullString(ident.PostalCode),
		nullString(ident.AccessToken),
		nullString(ident.RefreshToken),
		ident.UpdatedAt.Format(time.RFC3339),
		ident.ID,
	)
	if err != nil {
		return fmt.Errorf("updating linked identity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrIdentityNotFound
	}

	return nil
}

// ExistsForAccount reports whether any identity references the account.
func (r *SQLiteIdentityRepository) ExistsForAccount(ctx context.Context, accountID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM linked_identities WHERE account_id = ?", accountID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking identities for account: %w", err)
	}
	return count > 0, nil
}

// nullString returns a sql.NullString treating "" as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
