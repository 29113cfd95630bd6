package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/clubllm/backend/internal/handler/auth"
	"github.com/zhouzirui/clubllm/backend/internal/handler/chat"
	"github.com/zhouzirui/clubllm/backend/internal/handler/page"
	"github.com/zhouzirui/clubllm/backend/internal/middleware"
	"github.com/zhouzirui/clubllm/backend/internal/service/identity"
	"github.com/zhouzirui/clubllm/backend/internal/service/relay"
	"github.com/zhouzirui/clubllm/backend/internal/service/session"
	"github.com/zhouzirui/clubllm/backend/internal/web"
	"github.com/zhouzirui/clubllm/backend/pkg/utils"
)

// LoginPath is where the gate sends callers without a session.
const LoginPath = "/login"

// Deps are the services the HTTP layer is wired to. Relay may be nil when no
// completion backend is configured.
type Deps struct {
	Accounts       identity.Provider
	Sessions       *session.Manager
	Relay          *relay.Relay
	Pages          *web.Renderer
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(deps.AllowedOrigins))
	r.Use(middleware.LoadSession(deps.Sessions))

	authHandler := auth.New(deps.Accounts, deps.Sessions, deps.Pages)
	pageHandler := page.New(deps.Accounts, deps.Sessions, deps.Pages)
	chatHandler := chat.New(deps.Relay, deps.AllowedOrigins)

	r.Get("/api/health", handleHealth)
	pageHandler.RegisterRoutes(r)
	authHandler.RegisterRoutes(r)

	r.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireUser(LoginPath))

		pageHandler.RegisterProtectedRoutes(protected)
		authHandler.RegisterProtectedRoutes(protected)
		chatHandler.RegisterRoutes(protected)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
