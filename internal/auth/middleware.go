package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware resolves the calling account from a bearer token. With no
// secret every request runs as LocalAccount.
type Middleware struct {
	Secret       []byte
	ExemptPaths  map[string]struct{}
	Unauthorized func(w http.ResponseWriter, r *http.Request, err error)
}

// NewMiddleware constructs an auth middleware; exempt paths skip the check.
func NewMiddleware(secret []byte, exemptPaths ...string) *Middleware {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		set[p] = struct{}{}
	}
	return &Middleware{Secret: secret, ExemptPaths: set}
}

// Wrap applies authentication to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.ExemptPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		if len(m.Secret) == 0 {
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), LocalAccount, LocalAccount)))
			return
		}

		claims, err := ParseJWT(extractBearer(r), m.Secret)
		if err != nil {
			slog.WarnContext(r.Context(), "Rejected request", "path", r.URL.Path, "error", err)
			if m.Unauthorized != nil {
				m.Unauthorized(w, r, err)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := WithIdentity(r.Context(), claims.AccountID, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
