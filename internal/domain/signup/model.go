package signup

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Max length constants for user-supplied fields.
const (
	MaxNameLength  = 100
	MaxEmailLength = 254
)

// Domain errors
var (
	ErrInvalid        = errors.New("invalid signup")
	ErrDuplicateEmail = errors.New("email address is already registered")
	ErrLimitReached   = errors.New("signup limit reached")
)

// Signup is an accepted alpha-program signup.
type Signup struct {
	ID            string
	Email         string // normalized, unique
	FirstName     string
	LastName      string
	Organization  string
	Role          string
	AgreedToTerms bool
	CreatedAt     time.Time
}

// Candidate is an unvalidated signup as submitted by a client.
type Candidate struct {
	Email         string
	FirstName     string
	LastName      string
	Organization  string
	Role          string
	AgreedToTerms bool
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Two addresses identify the same signup iff their normalized forms are equal.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks that every required field is present.
// PRE: Candidate is populated from a request
// POST: Returns an error wrapping ErrInvalid naming the first bad field, nil otherwise
func (c Candidate) Validate() error {
	email := strings.TrimSpace(c.Email)
	switch {
	case email == "":
		return fieldError("email is required")
	case len(email) > MaxEmailLength:
		return fieldError("email cannot exceed %d characters", MaxEmailLength)
	case !strings.Contains(email, "@"):
		return fieldError("email must be valid")
	}

	required := []struct{ name, value string }{
		{"first name", c.FirstName},
		{"last name", c.LastName},
		{"organization", c.Organization},
		{"role", c.Role},
	}
	for _, f := range required {
		v := strings.TrimSpace(f.value)
		if v == "" {
			return fieldError("%s is required", f.name)
		}
		if len(v) > MaxNameLength {
			return fieldError("%s cannot exceed %d characters", f.name, MaxNameLength)
		}
	}

	if !c.AgreedToTerms {
		return fieldError("terms must be accepted")
	}
	return nil
}

// ToSignup builds the record to store from a validated candidate.
// PRE: Validate returned nil
// POST: Email is normalized, text fields trimmed, ID and CreatedAt set
func (c Candidate) ToSignup(id string, now time.Time) Signup {
	return Signup{
		ID:            id,
		Email:         NormalizeEmail(c.Email),
		FirstName:     strings.TrimSpace(c.FirstName),
		LastName:      strings.TrimSpace(c.LastName),
		Organization:  strings.TrimSpace(c.Organization),
		Role:          strings.TrimSpace(c.Role),
		AgreedToTerms: c.AgreedToTerms,
		CreatedAt:     now.UTC(),
	}
}

// LimitReached reports whether count has hit the admission ceiling.
func LimitReached(count, limit int) bool {
	return count >= limit
}

func fieldError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
