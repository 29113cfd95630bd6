package page

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/clubllm/backend/internal/model/user"
	"github.com/zhouzirui/clubllm/backend/internal/service/identity"
	"github.com/zhouzirui/clubllm/backend/internal/service/session"
	"github.com/zhouzirui/clubllm/backend/internal/web"
)

// Accounts looks up the account behind a session.
type Accounts interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// SessionEnder drops a session whose account no longer exists.
type SessionEnder interface {
	End(w http.ResponseWriter, r *http.Request)
}

// Handler 渲染首页与仪表盘
type Handler struct {
	accounts Accounts
	sessions SessionEnder
	pages    *web.Renderer
}

// New 创建页面处理器
func New(accounts Accounts, sessions SessionEnder, pages *web.Renderer) *Handler {
	return &Handler{accounts: accounts, sessions: sessions, pages: pages}
}

// RegisterRoutes 注册公开页面
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.showIndex)
}

// RegisterProtectedRoutes 注册需要登录的页面
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/dashboard", h.showDashboard)
}

func (h *Handler) showIndex(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, web.PageIndex, web.PageData{Title: "Home"})
}

// showDashboard re-reads the account so a deleted user is logged out
// instead of shown a stale page.
func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := session.IdentityFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	u, err := h.accounts.GetByID(ctx, id.UserID)
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		log.Ctx(ctx).Warn().Str("user_id", id.UserID).Msg("[page] session refers to a missing account")
		h.sessions.End(w, r)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Msg("[page] load account failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id.Email = u.Email
	h.pages.Render(w, r, http.StatusOK, web.PageDashboard, web.PageData{Title: "Dashboard", User: &id})
}
