package orchestrators

import (
	"context"
	"fmt"

	"alphagate/internal/domain/signup"
)

// SignupCounter reads the number of accepted signups.
type SignupCounter interface {
	Count(ctx context.Context) (int, error)
}

// SignupStatus is the public admission status. It never carries record contents.
type SignupStatus struct {
	LimitReached bool `json:"limitReached"`
	Limit        int  `json:"limit"`
}

// SignupStatusDeps holds dependencies for SignupStatus.
type SignupStatusDeps struct {
	Store SignupCounter
	Limit int
}

// ExecuteSignupStatus reports whether the ceiling has been reached.
// POST: Returns the ceiling and whether count >= ceiling
func ExecuteSignupStatus(ctx context.Context, deps SignupStatusDeps) (SignupStatus, error) {
	n, err := deps.Store.Count(ctx)
	if err != nil {
		return SignupStatus{}, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return SignupStatus{LimitReached: signup.LimitReached(n, deps.Limit), Limit: deps.Limit}, nil
}
