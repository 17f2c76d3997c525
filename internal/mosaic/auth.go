package mosaic

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Validator checks a caller-supplied bearer token and returns the caller's
// identity. Token issuance and validation belong to the host; the
// orchestrator only consumes the result.
type Validator interface {
	Validate(ctx context.Context, token string) (identity string, err error)
}

// ErrInvalidToken is returned by validators for missing or unknown tokens.
var ErrInvalidToken = errors.New("invalid token")

// StaticTokenValidator accepts a single pre-shared token. An empty Token
// disables authentication and all callers share the Identity.
type StaticTokenValidator struct {
	Token    string
	Identity string
}

// Validate implements Validator.
func (v StaticTokenValidator) Validate(_ context.Context, token string) (string, error) {
	if v.Token == "" {
		return v.Identity, nil
	}
	if token != v.Token {
		return "", ErrInvalidToken
	}
	return v.Identity, nil
}

type contextKey struct{}

var callerKey contextKey

// CallerFrom returns the caller identity stored by RequireAuth, or "" when
// the request did not pass through it.
func CallerFrom(ctx context.Context) string {
	if id, ok := ctx.Value(callerKey).(string); ok {
		return id
	}
	return ""
}

// RequireAuth returns chi-compatible middleware that validates the bearer
// token and stores the caller identity in the request context. Requests with
// a missing or invalid token are rejected with 401.
func RequireAuth(v Validator, log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			identity, err := v.Validate(r.Context(), token)
			if err != nil {
				log.Debug("rejected request", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
			ctx := context.WithValue(r.Context(), callerKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("bearer "):])
}
