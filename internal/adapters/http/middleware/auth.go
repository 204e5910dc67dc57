package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BearerVerifier checks the shared admin secret.
// A bcrypt hash, when configured, takes precedence over the plain secret.
type BearerVerifier struct {
	secret []byte
	hash   []byte
}

// NewBearerVerifier creates a verifier. Empty secret and hash reject every token.
func NewBearerVerifier(secret, hash string) *BearerVerifier {
	v := &BearerVerifier{}
	if secret != "" {
		v.secret = []byte(secret)
	}
	if hash != "" {
		v.hash = []byte(hash)
	}
	return v
}

// Configured reports whether any secret is set.
func (v *BearerVerifier) Configured() bool {
	return v != nil && (len(v.secret) > 0 || len(v.hash) > 0)
}

// Verify reports whether token matches the configured secret.
// POST: Comparison time does not depend on how much of token matches
func (v *BearerVerifier) Verify(token string) bool {
	if !v.Configured() || token == "" {
		return false
	}
	if len(v.hash) > 0 {
		return bcrypt.CompareHashAndPassword(v.hash, []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare(v.secret, []byte(token)) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireBearer returns middleware that blocks requests without the admin secret.
// Missing and wrong tokens get the same response from deny, or a plain 401
// when deny is nil. The token is never logged.
func RequireBearer(v *BearerVerifier, trustProxy bool, deny http.HandlerFunc) func(http.Handler) http.Handler {
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok || !v.Verify(token) {
				reason := "invalid"
				if !ok {
					reason = "missing"
				}
				slog.Warn("admin_auth_failed",
					"method", r.Method,
					"path", r.URL.Path,
					"ip", ClientIP(r, trustProxy),
					"reason", reason,
				)
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
