package orchestrators

import (
	"errors"
	"fmt"
)

// Errors returned by the signup and dispatch orchestrators. The HTTP layer
// maps each to a status code with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrCapacityExceeded  = errors.New("signup limit reached")
	ErrDuplicateIdentity = errors.New("email address is already registered")
	ErrStore             = errors.New("store failure")
	ErrNoValidRecipients = errors.New("no valid recipient email addresses")
	ErrConfiguration     = errors.New("configuration error")
	ErrBusy              = errors.New("signups are busy, try again")

	ErrProviderMissing      = fmt.Errorf("%w: email provider is not configured", ErrConfiguration)
	ErrSenderAddressMissing = fmt.Errorf("%w: sender address is not configured", ErrConfiguration)
)

// CapacityError reports a rejected signup together with the configured ceiling.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("signup limit of %d reached", e.Limit)
}

// Is makes errors.Is(err, ErrCapacityExceeded) true for a *CapacityError.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
