package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/zhouzirui/clubllm/backend/internal/service/session"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

// Check allows the request only when a user identity is present.
func Check(ctx context.Context, loginPath string) Decision {
	if _, ok := session.IdentityFromContext(ctx); ok {
		return Decision{Allowed: true}
	}
	return Decision{RedirectTo: loginPath}
}

// RequireUser redirects callers without a session to loginPath before the
// protected handler runs.
func RequireUser(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Check(r.Context(), loginPath)
			if !decision.Allowed {
				log.Ctx(r.Context()).Debug().Str("path", r.URL.Path).Msg("[gate] no session, redirecting to login")
				http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
