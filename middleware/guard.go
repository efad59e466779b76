package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [RequireSession].
func PrincipalFromContext(ctx context.Context) (goIdentity.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(goIdentity.Principal)
	return p, ok
}

// RequireSession rejects requests without a live session. A backend outage
// answers 503 so clients do not discard their token.
func RequireSession(engine *goIdentity.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			p, err := engine.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, goIdentity.ErrUnavailable):
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			default:
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
