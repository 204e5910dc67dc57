package signup

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/lib/pq"

	"alphagate/internal/adapters/storage"
	domain "alphagate/internal/domain/signup"
)

// uniqueViolation is the Postgres SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

// admissionLockKey names the transaction-scoped advisory lock that serializes
// conditional inserts across every process sharing the database.
const admissionLockKey = "alpha_signups:admission"

// PostgresStore implements Store using Postgres via lib/pq.
type PostgresStore struct {
	db     storage.SQLDB
	lockID int64
}

// NewPostgresStore creates a new Postgres-backed signup store.
func NewPostgresStore(db storage.SQLDB) *PostgresStore {
	h := fnv.New64a()
	h.Write([]byte(admissionLockKey))
	return &PostgresStore{db: db, lockID: int64(h.Sum64())}
}

// Count returns the number of stored signups.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alpha_signups").Scan(&n); err != nil {
		return 0, fmt.Errorf("count signups: %w", err)
	}
	return n, nil
}

// Insert stores a signup.
// PRE: value is validated and its email normalized
// POST: Row inserted, or domain.ErrDuplicateEmail on a 23505 conflict
func (s *PostgresStore) Insert(ctx context.Context, value domain.Signup) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO alpha_signups ("+selectColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		value.ID, value.Email, value.FirstName, value.LastName,
		value.Organization, value.Role, value.AgreedToTerms, value.CreatedAt.UTC(),
	)
	return translatePostgresError(err)
}

// InsertWithinLimit counts and inserts while holding a transaction-scoped
// advisory lock, so concurrent admissions from any process are serialized.
// PRE: value is validated; limit > 0
// POST: Row inserted, or domain.ErrLimitReached / domain.ErrDuplicateEmail with no write
func (s *PostgresStore) InsertWithinLimit(ctx context.Context, value domain.Signup, limit int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admission tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", s.lockID); err != nil {
		return fmt.Errorf("acquire admission lock: %w", err)
	}

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM alpha_signups").Scan(&n); err != nil {
		return fmt.Errorf("count signups: %w", err)
	}
	if domain.LimitReached(n, limit) {
		return domain.ErrLimitReached
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO alpha_signups ("+selectColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		value.ID, value.Email, value.FirstName, value.LastName,
		value.Organization, value.Role, value.AgreedToTerms, value.CreatedAt.UTC(),
	); err != nil {
		return translatePostgresError(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admission tx: %w", err)
	}
	return nil
}

// ListEmails returns every stored email, oldest signup first.
func (s *PostgresStore) ListEmails(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT email FROM alpha_signups ORDER BY signed_up_at, id")
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// List returns stored signups, oldest first.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]domain.Signup, error) {
	query := "SELECT " + selectColumns + " FROM alpha_signups ORDER BY signed_up_at, id"
	var args []any
	if filter.Limit > 0 {
		query += " LIMIT $1 OFFSET $2"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}
	defer rows.Close()

	var list []domain.Signup
	for rows.Next() {
		var item domain.Signup
		if err := rows.Scan(&item.ID, &item.Email, &item.FirstName, &item.LastName,
			&item.Organization, &item.Role, &item.AgreedToTerms, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signup: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		list = append(list, item)
	}
	return list, rows.Err()
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func translatePostgresError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, pqErr.Constraint)
	}
	return fmt.Errorf("insert signup: %w", err)
}
