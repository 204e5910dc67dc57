// Package web exposes the signup gate and the admin dispatch endpoint over HTTP.
package web

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	emailAdapter "alphagate/internal/adapters/email"
	"alphagate/internal/adapters/http/middleware"
	"alphagate/internal/adapters/http/perf"
	"alphagate/internal/adapters/lock"
	storeSignup "alphagate/internal/adapters/storage/signup"
	"alphagate/internal/application/orchestrators"
	"alphagate/internal/domain/dispatch"
	"alphagate/internal/domain/mailbody"
)

// healthTimeout bounds the store ping behind /healthz.
const healthTimeout = 2 * time.Second

// Options carries everything the handlers need. It is built once in main.
type Options struct {
	Limit        int
	Mode         orchestrators.AdmissionMode
	Lock         lock.Locker // required for ModeLocked
	WelcomeEmail bool

	Sender  emailAdapter.Sender // nil when no provider is configured
	From    string
	ReplyTo string
	Brand   mailbody.Brand

	ChunkSize     int
	ProviderLimit int
	Granularity   dispatch.Granularity
	Concurrency   int
	SendTimeout   time.Duration

	Admin          *middleware.BearerVerifier
	RateLimiter    *middleware.RateLimiter // nil disables rate limiting
	Collector      *perf.Collector
	SlowRequest    time.Duration
	CSRFKey        []byte
	SecureCookies  bool
	AllowedOrigins []string
	TrustProxy     bool

	// Test hooks.
	Now   func() time.Time
	NewID func() string
}

// Server holds the handler dependencies. Handlers are stateless beyond it.
type Server struct {
	store storeSignup.Store
	opts  Options
}

// NewServer creates a server over store.
// PRE: store is non-nil; opts.Limit > 0
func NewServer(store storeSignup.Store, opts Options) *Server {
	if opts.Admin == nil {
		opts.Admin = middleware.NewBearerVerifier("", "")
	}
	return &Server{store: store, opts: opts}
}

// Routes builds the router with the full middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		middleware.Timing(s.opts.Collector, s.opts.SlowRequest),
		middleware.Recover,
		middleware.SecurityHeaders,
		cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type", "X-CSRF-Token"},
			MaxAge:         300,
		}),
	)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/signups/status", s.handleSignupStatus)

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.RateLimit(s.opts.RateLimiter, s.opts.TrustProxy),
				middleware.CSRF(s.opts.CSRFKey, s.opts.SecureCookies, originHosts(s.opts.AllowedOrigins)),
			)
			r.Post("/signups", s.handleSubmitSignup)
			if len(s.opts.CSRFKey) > 0 {
				r.Get("/signups/csrf", s.handleCSRFToken)
			}
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(
				middleware.RateLimit(s.opts.RateLimiter, s.opts.TrustProxy),
				middleware.RequireBearer(s.opts.Admin, s.opts.TrustProxy, writeAdminUnauthorized),
			)
			r.Get("/signups", s.handleListSignups)
			r.Post("/dispatch", s.handleDispatch)
			r.Get("/perf", s.handlePerf)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// handleHealthz reports whether the store is reachable.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// originHosts converts CORS origins ("https://site.example") to the
// host[:port] form the CSRF origin check expects.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
