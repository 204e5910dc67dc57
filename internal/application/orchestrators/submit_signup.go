package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	emailAdapter "alphagate/internal/adapters/email"
	"alphagate/internal/adapters/lock"
	"alphagate/internal/domain/mailbody"
	"alphagate/internal/domain/signup"
	"alphagate/internal/pkg/redact"
)

// AdmissionMode selects how the signup ceiling is enforced.
type AdmissionMode string

const (
	// ModeApproximate counts then inserts. Concurrent submissions may
	// overshoot the ceiling by at most the number in flight.
	ModeApproximate AdmissionMode = "approximate"
	// ModeStrict uses the store's atomic conditional insert. Hard ceiling.
	ModeStrict AdmissionMode = "strict"
	// ModeLocked counts then inserts while holding a distributed lock.
	ModeLocked AdmissionMode = "locked"
)

// DefaultWelcomeTimeout bounds the confirmation email send.
const DefaultWelcomeTimeout = 10 * time.Second

// SignupStore is the admission-side view of the signup store.
type SignupStore interface {
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, value signup.Signup) error
	InsertWithinLimit(ctx context.Context, value signup.Signup, limit int) error
}

// SubmitSignupInput carries the submitted form fields.
type SubmitSignupInput struct {
	Email         string
	FirstName     string
	LastName      string
	Organization  string
	Role          string
	AgreedToTerms bool
}

// WelcomeDeps configures the confirmation email sent after admission.
type WelcomeDeps struct {
	Sender  emailAdapter.Sender
	From    string
	ReplyTo string
	Brand   mailbody.Brand
	Timeout time.Duration
}

// SubmitSignupDeps holds dependencies for SubmitSignup.
type SubmitSignupDeps struct {
	Store   SignupStore
	Limit   int
	Mode    AdmissionMode
	Lock    lock.Locker  // required for ModeLocked
	Welcome *WelcomeDeps // nil disables the confirmation email
	Now     func() time.Time
	NewID   func() string
}

// ExecuteSubmitSignup admits one candidate against the ceiling and the unique email constraint.
// PRE: deps.Store is non-nil; deps.Limit > 0
// POST: On success exactly one signup is stored and returned with gate-assigned ID and CreatedAt
// POST: On any error no signup is stored
// INVARIANT: Validation failures never touch the store
func ExecuteSubmitSignup(ctx context.Context, input SubmitSignupInput, deps SubmitSignupDeps) (signup.Signup, error) {
	candidate := signup.Candidate{
		Email:         input.Email,
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		Organization:  input.Organization,
		Role:          input.Role,
		AgreedToTerms: input.AgreedToTerms,
	}
	if err := candidate.Validate(); err != nil {
		return signup.Signup{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	newID := uuid.NewString
	if deps.NewID != nil {
		newID = deps.NewID
	}
	record := candidate.ToSignup(newID(), now())

	var err error
	switch deps.Mode {
	case ModeStrict:
		err = deps.Store.InsertWithinLimit(ctx, record, deps.Limit)
	case ModeLocked:
		if deps.Lock == nil {
			return signup.Signup{}, fmt.Errorf("%w: locked admission needs a lock", ErrConfiguration)
		}
		err = deps.Lock.WithLock(ctx, func(ctx context.Context) error {
			return admitTwoStep(ctx, deps.Store, record, deps.Limit)
		})
	default:
		err = admitTwoStep(ctx, deps.Store, record, deps.Limit)
	}

	switch {
	case err == nil:
	case errors.Is(err, signup.ErrLimitReached):
		slog.Info("signup_event", "event", "limit_reached", "limit", deps.Limit)
		return signup.Signup{}, &CapacityError{Limit: deps.Limit}
	case errors.Is(err, signup.ErrDuplicateEmail):
		slog.Info("signup_event", "event", "duplicate", "email", redact.Email(record.Email))
		return signup.Signup{}, ErrDuplicateIdentity
	case errors.Is(err, lock.ErrNotAcquired):
		slog.Warn("signup_event", "event", "lock_busy")
		return signup.Signup{}, ErrBusy
	default:
		slog.Error("signup_event", "event", "store_failed", "error", err)
		return signup.Signup{}, fmt.Errorf("%w: %w", ErrStore, err)
	}

	slog.Info("signup_event", "event", "accepted", "id", record.ID, "email", redact.Email(record.Email), "mode", string(deps.Mode))
	sendWelcome(ctx, record, deps.Welcome)
	return record, nil
}

// admitTwoStep reads the count and inserts when below limit.
func admitTwoStep(ctx context.Context, store SignupStore, record signup.Signup, limit int) error {
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if signup.LimitReached(n, limit) {
		return signup.ErrLimitReached
	}
	return store.Insert(ctx, record)
}

// sendWelcome sends the confirmation email. Failures are logged only.
func sendWelcome(ctx context.Context, record signup.Signup, deps *WelcomeDeps) {
	if deps == nil || deps.Sender == nil || deps.From == "" {
		return
	}
	msg, err := mailbody.RenderWelcome(mailbody.Welcome{
		FirstName:    record.FirstName,
		Organization: record.Organization,
		Role:         record.Role,
		FromAddress:  deps.From,
		Brand:        deps.Brand,
	})
	if err != nil {
		slog.Error("welcome_email_failed", "id", record.ID, "error", err)
		return
	}

	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultWelcomeTimeout
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if _, err := deps.Sender.Send(sendCtx, emailAdapter.SendRequest{
		To:      []string{record.Email},
		From:    deps.From,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: deps.ReplyTo,
	}); err != nil {
		slog.Warn("welcome_email_failed", "id", record.ID, "email", redact.Email(record.Email), "error", err)
		return
	}
	slog.Info("welcome_email_sent", "id", record.ID)
}
