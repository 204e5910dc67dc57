package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/csrf"

	"alphagate/internal/application/orchestrators"
	"alphagate/internal/domain/signup"
)

// signupRequest is the public signup payload. airline, job_role and
// job_title are the field names used by the first landing page form.
// base and signed_up_at are accepted from that form but not stored; the
// signup time is always assigned by the server.
type signupRequest struct {
	Email         string          `json:"email"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Organization  string          `json:"organization"`
	Airline       string          `json:"airline"`
	Role          string          `json:"role"`
	JobRole       string          `json:"job_role"`
	JobTitle      string          `json:"job_title"`
	Base          string          `json:"base"`
	AgreedToTerms bool            `json:"agreed_to_terms"`
	SignedUpAt    json.RawMessage `json:"signed_up_at"`
}

func (req signupRequest) input() orchestrators.SubmitSignupInput {
	return orchestrators.SubmitSignupInput{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Organization:  firstNonBlank(req.Organization, req.Airline),
		Role:          firstNonBlank(req.Role, req.JobRole, req.JobTitle),
		AgreedToTerms: req.AgreedToTerms,
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// signupView is the JSON form of an accepted signup.
type signupView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Organization  string    `json:"organization"`
	Role          string    `json:"role"`
	AgreedToTerms bool      `json:"agreed_to_terms"`
	SignedUpAt    time.Time `json:"signed_up_at"`
}

func newSignupView(s signup.Signup) signupView {
	return signupView{
		ID:            s.ID,
		Email:         s.Email,
		FirstName:     s.FirstName,
		LastName:      s.LastName,
		Organization:  s.Organization,
		Role:          s.Role,
		AgreedToTerms: s.AgreedToTerms,
		SignedUpAt:    s.CreatedAt,
	}
}

// signupResponse is the envelope for POST /api/signups.
type signupResponse struct {
	Success      bool        `json:"success"`
	Data         *signupView `json:"data,omitempty"`
	Message      string      `json:"message"`
	LimitReached bool        `json:"limitReached,omitempty"`
	Limit        int         `json:"limit,omitempty"`
	EmailExists  bool        `json:"emailExists,omitempty"`
}

// handleSubmitSignup admits one signup from a JSON or form body.
func (s *Server) handleSubmitSignup(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSignup(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, signupResponse{Message: "Invalid request body"})
		return
	}

	deps := orchestrators.SubmitSignupDeps{
		Store: s.store,
		Limit: s.opts.Limit,
		Mode:  s.opts.Mode,
		Lock:  s.opts.Lock,
		Now:   s.opts.Now,
		NewID: s.opts.NewID,
	}
	if s.opts.WelcomeEmail && s.opts.Sender != nil {
		deps.Welcome = &orchestrators.WelcomeDeps{
			Sender:  s.opts.Sender,
			From:    s.opts.From,
			ReplyTo: s.opts.ReplyTo,
			Brand:   s.opts.Brand,
		}
	}

	created, err := orchestrators.ExecuteSubmitSignup(r.Context(), req.input(), deps)
	if err != nil {
		s.writeSignupError(w, err)
		return
	}

	view := newSignupView(created)
	writeJSON(w, http.StatusCreated, signupResponse{
		Success: true,
		Data:    &view,
		Message: "Signup successful! Please check your email for confirmation.",
	})
}

func (s *Server) writeSignupError(w http.ResponseWriter, err error) {
	var capErr *orchestrators.CapacityError
	switch {
	case errors.Is(err, orchestrators.ErrValidation):
		writeJSON(w, http.StatusBadRequest, signupResponse{Message: validationMessage(err)})
	case errors.As(err, &capErr):
		writeJSON(w, http.StatusForbidden, signupResponse{
			Message:      "Sorry, alpha tester sign-ups have reached the limit of " + strconv.Itoa(capErr.Limit) + ".",
			LimitReached: true,
			Limit:        capErr.Limit,
		})
	case errors.Is(err, orchestrators.ErrDuplicateIdentity):
		writeJSON(w, http.StatusConflict, signupResponse{
			Message:     "This email address has already been registered.",
			EmailExists: true,
		})
	case errors.Is(err, orchestrators.ErrBusy):
		writeJSON(w, http.StatusServiceUnavailable, signupResponse{Message: "Signups are busy. Please try again."})
	default:
		slog.Error("internal_error", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, signupResponse{Message: "Could not process signup."})
	}
}

// validationMessage returns the field problem without the sentinel prefixes.
func validationMessage(err error) string {
	msg := err.Error()
	if _, detail, ok := strings.Cut(msg, signup.ErrInvalid.Error()+": "); ok {
		return detail
	}
	return "Missing required fields."
}

// decodeSignup reads a JSON body, or a form body for plain HTML form posts.
func decodeSignup(w http.ResponseWriter, r *http.Request) (signupRequest, error) {
	var req signupRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := strictDecode(w, r, &req)
		return req, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req = signupRequest{
		Email:        r.PostFormValue("email"),
		FirstName:    r.PostFormValue("first_name"),
		LastName:     r.PostFormValue("last_name"),
		Organization: r.PostFormValue("organization"),
		Airline:      r.PostFormValue("airline"),
		Role:         r.PostFormValue("role"),
		JobRole:      r.PostFormValue("job_role"),
		JobTitle:     r.PostFormValue("job_title"),
		Base:         r.PostFormValue("base"),
	}
	switch strings.ToLower(r.PostFormValue("agreed_to_terms")) {
	case "on", "true", "1", "yes":
		req.AgreedToTerms = true
	}
	return req, nil
}

// handleSignupStatus reports whether the ceiling has been reached.
func (s *Server) handleSignupStatus(w http.ResponseWriter, r *http.Request) {
	status, err := orchestrators.ExecuteSignupStatus(r.Context(), orchestrators.SignupStatusDeps{
		Store: s.store,
		Limit: s.opts.Limit,
	})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCSRFToken hands a form page the token to embed in its post.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": csrf.Token(r)})
}
