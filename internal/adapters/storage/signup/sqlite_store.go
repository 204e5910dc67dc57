package signup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alphagate/internal/adapters/storage"
	domain "alphagate/internal/domain/signup"
)

const selectColumns = "id, email, first_name, last_name, organization, role, agreed_to_terms, signed_up_at"

// timeLayout is fixed-width so that signed_up_at sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLite-backed signup store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Count returns the number of stored signups.
// POST: Returns the row count of alpha_signups
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alpha_signups").Scan(&n); err != nil {
		return 0, fmt.Errorf("count signups: %w", err)
	}
	return n, nil
}

// Insert stores a signup.
// PRE: value is validated and its email normalized
// POST: Row inserted, or domain.ErrDuplicateEmail if the email exists
func (s *SQLiteStore) Insert(ctx context.Context, value domain.Signup) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO alpha_signups ("+selectColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		insertArgs(value)...,
	)
	if err != nil {
		return translateSQLiteError(err)
	}
	return nil
}

// InsertWithinLimit stores a signup only while the table holds fewer than limit rows.
// SQLite serializes writers, so the count and the insert in one statement
// cannot interleave with another insert.
// PRE: value is validated; limit > 0
// POST: Row inserted, or domain.ErrLimitReached / domain.ErrDuplicateEmail with no write
func (s *SQLiteStore) InsertWithinLimit(ctx context.Context, value domain.Signup, limit int) error {
	args := append(insertArgs(value), limit)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO alpha_signups ("+selectColumns+") "+
			"SELECT ?, ?, ?, ?, ?, ?, ?, ? WHERE (SELECT COUNT(*) FROM alpha_signups) < ?",
		args...,
	)
	if err != nil {
		return translateSQLiteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert signup: %w", err)
	}
	if n == 0 {
		return domain.ErrLimitReached
	}
	return nil
}

// ListEmails returns every stored email, oldest signup first.
func (s *SQLiteStore) ListEmails(ctx context.Context) ([]string, error) {
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
// PRE: filter.Limit >= 0 (0 means no limit)
// POST: Returns at most filter.Limit signups after skipping filter.Offset
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Signup, error) {
	query := "SELECT " + selectColumns + " FROM alpha_signups ORDER BY signed_up_at, id"
	var args []any
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
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
		var agreed int
		var signedUpAt string
		if err := rows.Scan(&item.ID, &item.Email, &item.FirstName, &item.LastName,
			&item.Organization, &item.Role, &agreed, &signedUpAt); err != nil {
			return nil, fmt.Errorf("scan signup: %w", err)
		}
		item.AgreedToTerms = agreed != 0
		item.CreatedAt, err = time.Parse(timeLayout, signedUpAt)
		if err != nil {
			return nil, fmt.Errorf("parse signed_up_at for %s: %w", item.ID, err)
		}
		list = append(list, item)
	}
	return list, rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func insertArgs(value domain.Signup) []any {
	agreed := 0
	if value.AgreedToTerms {
		agreed = 1
	}
	return []any{
		value.ID,
		value.Email,
		value.FirstName,
		value.LastName,
		value.Organization,
		value.Role,
		agreed,
		value.CreatedAt.UTC().Format(timeLayout),
	}
}

// translateSQLiteError maps a unique violation on email to domain.ErrDuplicateEmail.
func translateSQLiteError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "email") {
		return fmt.Errorf("%w: %v", domain.ErrDuplicateEmail, err)
	}
	return fmt.Errorf("insert signup: %w", err)
}
