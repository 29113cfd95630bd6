package middleware

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/zhouzirui/clubllm/backend/internal/service/session"
)

// SessionResolver resolves the caller behind a request's session cookie.
type SessionResolver interface {
	Resolve(r *http.Request) (session.Identity, bool)
}

// LoadSession resolves the session once per request and stores the identity in
// the context. Requests without a valid session pass through unchanged.
func LoadSession(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := resolver.Resolve(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			// child logger: the context may resolve to the process-wide one
			logger := zerolog.Ctx(r.Context()).With().Str("user_id", id.UserID).Logger()
			ctx := logger.WithContext(session.WithIdentity(r.Context(), id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
