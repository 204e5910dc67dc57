package signup

import (
	"context"

	domain "alphagate/internal/domain/signup"
)

// Store persists accepted signups.
type Store interface {
	// Count returns the number of accepted signups.
	Count(ctx context.Context) (int, error)
	// Insert stores value. Returns domain.ErrDuplicateEmail when the email is taken.
	Insert(ctx context.Context, value domain.Signup) error
	// InsertWithinLimit stores value only while fewer than limit rows exist,
	// as one atomic step. Returns domain.ErrLimitReached or domain.ErrDuplicateEmail.
	InsertWithinLimit(ctx context.Context, value domain.Signup, limit int) error
	// ListEmails returns every stored email in signup order.
	ListEmails(ctx context.Context) ([]string, error)
	// List returns stored signups in signup order.
	List(ctx context.Context, filter ListFilter) ([]domain.Signup, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// ListFilter carries paging parameters for List.
type ListFilter struct {
	Limit  int
	Offset int
}
