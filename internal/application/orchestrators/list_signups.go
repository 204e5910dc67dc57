package orchestrators

import (
	"context"
	"fmt"

	storeSignup "alphagate/internal/adapters/storage/signup"
	"alphagate/internal/domain/signup"
)

// SignupLister lists accepted signups.
type SignupLister interface {
	List(ctx context.Context, filter storeSignup.ListFilter) ([]signup.Signup, error)
}

// ListSignupsInput carries paging for ListSignups.
type ListSignupsInput struct {
	Limit  int
	Offset int
}

// ListSignupsDeps holds dependencies for ListSignups.
type ListSignupsDeps struct {
	Store SignupLister
}

// MaxListLimit caps a single page of the admin listing.
const MaxListLimit = 1000

// ExecuteListSignups returns accepted signups oldest first for the admin view.
// PRE: Caller is authorized
// POST: Returns at most MaxListLimit signups
func ExecuteListSignups(ctx context.Context, input ListSignupsInput, deps ListSignupsDeps) ([]signup.Signup, error) {
	if input.Limit < 0 || input.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrValidation)
	}
	limit := input.Limit
	if limit == 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	list, err := deps.Store.List(ctx, storeSignup.ListFilter{Limit: limit, Offset: input.Offset})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return list, nil
}
