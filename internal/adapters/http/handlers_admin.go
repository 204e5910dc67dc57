package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"alphagate/internal/adapters/http/perf"
	"alphagate/internal/application/orchestrators"
	"alphagate/internal/domain/dispatch"
)

// Perf snapshot defaults.
const (
	defaultPerfWindow = 15 * time.Minute
	perfTopN          = 10
)

// dispatchRequest is the admin dispatch payload. html_body and
// selected_emails are accepted as legacy field names.
type dispatchRequest struct {
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	HTMLBody       string   `json:"html_body"`
	TextBody       string   `json:"text_body"`
	Format         string   `json:"format"`
	Recipients     []string `json:"recipients"`
	SelectedEmails []string `json:"selected_emails"`
}

func (req dispatchRequest) input() orchestrators.DispatchInput {
	body := req.Body
	if body == "" {
		body = req.HTMLBody
	}
	recipients := req.Recipients
	if recipients == nil {
		recipients = req.SelectedEmails
	}
	return orchestrators.DispatchInput{
		Subject:    req.Subject,
		Body:       body,
		TextBody:   req.TextBody,
		Format:     req.Format,
		Recipients: recipients,
	}
}

// dispatchResponse is the dispatch result plus a human-readable summary.
type dispatchResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	dispatch.Result
}

// writeAdminUnauthorized answers a failed admin check with a hard-failure
// dispatch result, so the dispatch caller sees one shape for every refusal.
func writeAdminUnauthorized(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusUnauthorized, dispatchResponse{
		Error:  "Unauthorized",
		Result: dispatch.HardFailure(),
	})
}

// handleDispatch sends one batch notification.
// PRE: RequireBearer has run
// POST: The server write timeout does not apply; the response waits for every send
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request: invalid JSON body")
		return
	}

	// Each send is bounded by SendTimeout, so the whole dispatch is too.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("dispatch_write_deadline_failed", "error", err)
	}

	result, err := orchestrators.ExecuteDispatch(r.Context(), req.input(), orchestrators.DispatchDeps{
		Sender:        s.opts.Sender,
		Recipients:    s.store,
		From:          s.opts.From,
		ReplyTo:       s.opts.ReplyTo,
		Brand:         s.opts.Brand,
		ChunkSize:     s.opts.ChunkSize,
		ProviderLimit: s.opts.ProviderLimit,
		Granularity:   s.opts.Granularity,
		Concurrency:   s.opts.Concurrency,
		SendTimeout:   s.opts.SendTimeout,
	})
	switch {
	case err == nil:
	case errors.Is(err, orchestrators.ErrValidation):
		writeJSON(w, http.StatusBadRequest, dispatchResponse{Error: "Bad Request: " + err.Error(), Result: result})
		return
	case errors.Is(err, orchestrators.ErrNoValidRecipients):
		writeJSON(w, http.StatusBadRequest, dispatchResponse{Error: "No valid recipient email addresses provided.", Result: result})
		return
	case errors.Is(err, orchestrators.ErrProviderMissing):
		writeJSON(w, http.StatusServiceUnavailable, dispatchResponse{Error: "Email service is not configured.", Result: result})
		return
	case errors.Is(err, orchestrators.ErrSenderAddressMissing):
		writeJSON(w, http.StatusInternalServerError, dispatchResponse{Error: "Sender email address is not configured.", Result: result})
		return
	default:
		internalError(w, err)
		return
	}

	if result.Status == dispatch.StatusPartialFailure {
		writeJSON(w, http.StatusMultiStatus, dispatchResponse{
			Message: "Some emails were not sent. See failures for details.",
			Result:  result,
		})
		return
	}
	writeJSON(w, http.StatusOK, dispatchResponse{Message: "All emails sent successfully!", Result: result})
}

// handleListSignups returns accepted signups for the admin view.
// PRE: RequireBearer has run
func (s *Server) handleListSignups(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	list, err := orchestrators.ExecuteListSignups(r.Context(), orchestrators.ListSignupsInput{
		Limit:  limit,
		Offset: offset,
	}, orchestrators.ListSignupsDeps{Store: s.store})
	switch {
	case err == nil:
	case errors.Is(err, orchestrators.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		internalError(w, err)
		return
	}

	views := make([]signupView, 0, len(list))
	for _, su := range list {
		views = append(views, newSignupView(su))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signups": views,
		"count":   len(views),
		"limit":   s.opts.Limit,
	})
}

// handlePerf returns the timing snapshot for the requested window (default 15m).
// PRE: RequireBearer has run
func (s *Server) handlePerf(w http.ResponseWriter, r *http.Request) {
	window := defaultPerfWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration such as 15m")
			return
		}
		window = d
	}
	if s.opts.Collector == nil {
		writeJSON(w, http.StatusOK, perf.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Collector.Snapshot(time.Now().Add(-window), perfTopN))
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
