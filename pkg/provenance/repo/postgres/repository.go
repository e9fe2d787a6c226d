// Package postgres provides a pgx-backed IndexRepository.
//
// Expected schema (migration tooling lives outside this module):
//
//	users(id uuid PK, identity text UNIQUE, created_at timestamptz)
//	medical_records(id uuid PK, user_id uuid REFERENCES users,
//	    content_ref text, description text, token_id bigint UNIQUE NULL,
//	    created_at timestamptz, updated_at timestamptz)
//	access_grants(token_id bigint, grantee text, active boolean,
//	    updated_at timestamptz, PRIMARY KEY (token_id, grantee))
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medchain/provenance/pkg/provenance"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements provenance.IndexRepository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL index repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL index repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("duplicate entry in %s", operation)
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found in %s", operation)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// recordRow scans one medical_records row.
func scanRecord(row pgx.Row) (*provenance.MedicalRecordEntry, error) {
	var (
		entry      provenance.MedicalRecordEntry
		contentRef string
		tokenID    *int64
	)
	err := row.Scan(&entry.ID, &entry.UserID, &contentRef, &entry.Description,
		&tokenID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	entry.ContentRef = provenance.ContentID(contentRef)
	if tokenID != nil {
		id := provenance.TokenID(*tokenID)
		entry.TokenID = &id
	}
	return &entry, nil
}

const recordColumns = `id, user_id, content_ref, description, token_id, created_at, updated_at`

// User operations

func (r *Repository) GetOrCreateUser(ctx context.Context, identity provenance.Identity) (*provenance.User, error) {
	query := `
		INSERT INTO users (id, identity, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE SET identity = EXCLUDED.identity
		RETURNING id, identity, created_at`

	var user provenance.User
	var ident string
	err := r.db.QueryRow(ctx, query, uuid.New(), string(identity), time.Now().UTC()).
		Scan(&user.ID, &ident, &user.CreatedAt)
	if err != nil {
		return nil, r.handlePostgresError("get or create user", err)
	}
	user.Identity = provenance.Identity(ident)
	return &user, nil
}

func (r *Repository) GetUserByIdentity(ctx context.Context, identity provenance.Identity) (*provenance.User, error) {
	query := `SELECT id, identity, created_at FROM users WHERE identity = $1`

	var user provenance.User
	var ident string
	err := r.db.QueryRow(ctx, query, string(identity)).Scan(&user.ID, &ident, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, provenance.ErrUserResolutionFailed
		}
		return nil, r.handlePostgresError("get user", err)
	}
	user.Identity = provenance.Identity(ident)
	return &user, nil
}

// Record operations

func (r *Repository) CreateRecord(ctx context.Context, entry *provenance.MedicalRecordEntry) error {
	query := `
		INSERT INTO medical_records (id, user_id, content_ref, description, token_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var tokenID *int64
	if entry.TokenID != nil {
		id := int64(*entry.TokenID)
		tokenID = &id
	}

	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.UserID, string(entry.ContentRef), entry.Description,
		tokenID, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create record", err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*provenance.MedicalRecordEntry, error) {
	query := `SELECT ` + recordColumns + ` FROM medical_records WHERE id = $1`

	entry, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, provenance.ErrRecordNotFound
		}
		return nil, r.handlePostgresError("get record", err)
	}
	return entry, nil
}

func (r *Repository) GetRecordByToken(ctx context.Context, tokenID provenance.TokenID) (*provenance.MedicalRecordEntry, error) {
	query := `SELECT ` + recordColumns + ` FROM medical_records WHERE token_id = $1`

	entry, err := scanRecord(r.db.QueryRow(ctx, query, int64(tokenID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, provenance.ErrRecordNotFound
		}
		return nil, r.handlePostgresError("get record by token", err)
	}
	return entry, nil
}

func (r *Repository) ListRecordsByUser(ctx context.Context, userID uuid.UUID) ([]*provenance.MedicalRecordEntry, error) {
	query := `SELECT ` + recordColumns + ` FROM medical_records WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, r.handlePostgresError("list records", err)
	}
	defer rows.Close()

	var result []*provenance.MedicalRecordEntry
	for rows.Next() {
		entry, err := scanRecord(rows)
		if err != nil {
			return nil, r.handlePostgresError("list records", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *Repository) AttachToken(ctx context.Context, userID uuid.UUID, contentRef provenance.ContentID, tokenID provenance.TokenID) (*provenance.MedicalRecordEntry, error) {
	// Overwrite an existing row for this token with ledger truth.
	overwrite := `
		UPDATE medical_records SET user_id = $2, content_ref = $3, updated_at = $4
		WHERE token_id = $1
		RETURNING ` + recordColumns

	now := time.Now().UTC()
	entry, err := scanRecord(r.db.QueryRow(ctx, overwrite, int64(tokenID), userID, string(contentRef), now))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, r.handlePostgresError("attach token", err)
	}

	// Promote the oldest pending row for (user, content).
	promote := `
		UPDATE medical_records SET token_id = $1, updated_at = $4
		WHERE id = (
			SELECT id FROM medical_records
			WHERE user_id = $2 AND content_ref = $3 AND token_id IS NULL
			ORDER BY created_at
			LIMIT 1
		)
		RETURNING ` + recordColumns

	entry, err = scanRecord(r.db.QueryRow(ctx, promote, int64(tokenID), userID, string(contentRef), now))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, r.handlePostgresError("attach token", err)
	}

	// Mint without prior registration: insert a fresh row.
	insert := `
		INSERT INTO medical_records (id, user_id, content_ref, description, token_id, created_at, updated_at)
		VALUES ($1, $2, $3, '', $4, $5, $5)
		RETURNING ` + recordColumns

	entry, err = scanRecord(r.db.QueryRow(ctx, insert, uuid.New(), userID, string(contentRef), int64(tokenID), now))
	if err != nil {
		return nil, r.handlePostgresError("attach token", err)
	}
	return entry, nil
}

// Grant mirror operations

func (r *Repository) UpsertGrant(ctx context.Context, grant *provenance.AccessGrant) error {
	query := `
		INSERT INTO access_grants (token_id, grantee, active, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id, grantee)
		DO UPDATE SET active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		int64(grant.TokenID), string(grant.Grantee), grant.Active, grant.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("upsert grant", err)
	}
	return nil
}

func (r *Repository) ListGrants(ctx context.Context, tokenID provenance.TokenID) ([]*provenance.AccessGrant, error) {
	query := `
		SELECT token_id, grantee, active, updated_at FROM access_grants
		WHERE token_id = $1 AND active
		ORDER BY grantee`

	rows, err := r.db.Query(ctx, query, int64(tokenID))
	if err != nil {
		return nil, r.handlePostgresError("list grants", err)
	}
	defer rows.Close()

	var result []*provenance.AccessGrant
	for rows.Next() {
		var (
			grant   provenance.AccessGrant
			id      int64
			grantee string
		)
		if err := rows.Scan(&id, &grantee, &grant.Active, &grant.UpdatedAt); err != nil {
			return nil, r.handlePostgresError("list grants", err)
		}
		grant.TokenID = provenance.TokenID(id)
		grant.Grantee = provenance.Identity(grantee)
		result = append(result, &grant)
	}
	return result, rows.Err()
}

func (r *Repository) ReplaceGrants(ctx context.Context, tokenID provenance.TokenID, grantees []provenance.Identity) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM access_grants WHERE token_id = $1`, int64(tokenID)); err != nil {
		return r.handlePostgresError("replace grants", err)
	}

	now := time.Now().UTC()
	for _, grantee := range grantees {
		query := `
			INSERT INTO access_grants (token_id, grantee, active, updated_at)
			VALUES ($1, $2, TRUE, $3)`
		if _, err := r.db.Exec(ctx, query, int64(tokenID), string(grantee), now); err != nil {
			return r.handlePostgresError("replace grants", err)
		}
	}
	return nil
}

func (r *Repository) ListRecordsSharedWith(ctx context.Context, grantee provenance.Identity) ([]*provenance.MedicalRecordEntry, error) {
	query := `
		SELECT r.id, r.user_id, r.content_ref, r.description, r.token_id, r.created_at, r.updated_at
		FROM medical_records r
		JOIN access_grants g ON g.token_id = r.token_id
		WHERE g.grantee = $1 AND g.active
		ORDER BY r.created_at DESC`

	rows, err := r.db.Query(ctx, query, string(grantee))
	if err != nil {
		return nil, r.handlePostgresError("list shared records", err)
	}
	defer rows.Close()

	var result []*provenance.MedicalRecordEntry
	for rows.Next() {
		entry, err := scanRecord(rows)
		if err != nil {
			return nil, r.handlePostgresError("list shared records", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
