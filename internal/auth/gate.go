package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

// WithIdentity returns a context carrying the user id.
func WithIdentity(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// IdentityFrom returns the user id attached by the gate, if any.
func IdentityFrom(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(contextKey{}).(int)
	return userID, ok
}

type Gate struct {
	header   string
	scheme   string
	verifier *Verifier
	logger   *slog.Logger
}

// NewGate creates a gate reading header. When scheme is empty any scheme
// prefix is accepted.
func NewGate(header, scheme string, verifier *Verifier, logger *slog.Logger) *Gate {
	return &Gate{
		header:   header,
		scheme:   scheme,
		verifier: verifier,
		logger:   logger,
	}
}

// Identify extracts and verifies the credential of r.
func (g *Gate) Identify(r *http.Request) (int, bool) {
	value := r.Header.Get(g.header)
	if value == "" {
		return 0, false
	}

	scheme, token, found := strings.Cut(value, " ")
	if !found {
		return 0, false
	}
	if g.scheme != "" && !strings.EqualFold(scheme, g.scheme) {
		return 0, false
	}

	userID, err := g.verifier.Verify(strings.TrimSpace(token))
	if err != nil {
		g.logger.Debug("Credential rejected", "error", err)
		return 0, false
	}

	return userID, true
}

// Middleware attaches the identity, when there is one, and always calls next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := g.Identify(r); ok {
			r = r.WithContext(WithIdentity(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// Require answers 403 to requests without identity.
func Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "permission denied"})
			return
		}
		next(w, r)
	}
}
