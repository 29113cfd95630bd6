package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/clubllm/backend/internal/model/user"
	"github.com/zhouzirui/clubllm/backend/internal/service/session"
	"github.com/zhouzirui/clubllm/backend/internal/web"
	"github.com/zhouzirui/clubllm/backend/pkg/utils"
)

// 页面提示文案
const (
	MsgLoginSuccess  = "Successfully logged in!"
	MsgLoginFailed   = "Invalid credentials!"
	MsgSignupSuccess = "Successfully created account!"
	MsgSignupFailed  = "Error creating account!"
)

// Accounts is the identity provider as seen by the auth routes.
type Accounts interface {
	Create(ctx context.Context, email, password string) (user.User, error)
	Authenticate(ctx context.Context, email, password string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

// Sessions starts and ends login sessions on the client.
type Sessions interface {
	Start(w http.ResponseWriter, r *http.Request, userID, email string) (session.Ticket, error)
	End(w http.ResponseWriter, r *http.Request)
}

// Handler 登录、注册与登出
type Handler struct {
	accounts Accounts
	sessions Sessions
	pages    *web.Renderer
	validate *validator.Validate
}

// New 创建认证处理器
func New(accounts Accounts, sessions Sessions, pages *web.Renderer) *Handler {
	return &Handler{
		accounts: accounts,
		sessions: sessions,
		pages:    pages,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes 注册公开的认证路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/signup", h.showSignup)
	r.Post("/signup", h.handleSignup)
	r.Get("/logout", h.handleLogout)

	r.Route("/api/auth", func(api chi.Router) {
		api.Post("/login", h.apiLogin)
		api.Post("/signup", h.apiSignup)
		api.Get("/logout", h.apiLogout)
		api.Get("/me", h.apiMe)
	})
}

// RegisterProtectedRoutes 注册需要登录的 JSON 路由
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/api/me", h.handleMe)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signupForm struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, web.PageLogin, web.PageData{Title: "Log in"})
}

func (h *Handler) showSignup(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, web.PageSignup, web.PageData{Title: "Sign up"})
}

// handleLogin verifies the password against the identity provider. Every
// failure looks the same to the caller.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	fail := func(err error) {
		log.Ctx(ctx).Info().Err(err).Msg("[auth] login rejected")
		h.pages.Render(w, r, http.StatusUnauthorized, web.PageLogin, web.PageData{
			Title:   "Log in",
			Email:   form.Email,
			Flashes: []web.Flash{{Category: web.FlashError, Message: MsgLoginFailed}},
		})
	}

	if err := h.validate.Struct(form); err != nil {
		fail(err)
		return
	}

	u, err := h.accounts.Authenticate(ctx, form.Email, form.Password)
	if err != nil {
		fail(err)
		return
	}

	if _, err := h.sessions.Start(w, r, u.ID, u.Email); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("[auth] start session failed")
		fail(err)
		return
	}

	log.Ctx(ctx).Info().Str("user_id", u.ID).Msg("[auth] login succeeded")
	web.SetFlash(w, web.Flash{Category: web.FlashSuccess, Message: MsgLoginSuccess})
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// handleSignup creates the account and sends the caller to the login page.
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form := signupForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	fail := func(err error) {
		log.Ctx(ctx).Info().Err(err).Msg("[auth] signup rejected")
		h.pages.Render(w, r, http.StatusBadRequest, web.PageSignup, web.PageData{
			Title:   "Sign up",
			Email:   form.Email,
			Flashes: []web.Flash{{Category: web.FlashError, Message: MsgSignupFailed}},
		})
	}

	if err := h.validate.Struct(form); err != nil {
		fail(err)
		return
	}

	u, err := h.accounts.Create(ctx, form.Email, form.Password)
	if err != nil {
		fail(err)
		return
	}

	log.Ctx(ctx).Info().Str("user_id", u.ID).Msg("[auth] account created")
	web.SetFlash(w, web.Flash{Category: web.FlashSuccess, Message: MsgSignupSuccess})
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}

type meResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := session.IdentityFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	utils.RespondJSON(w, http.StatusOK, meResponse{UID: id.UserID, Email: id.Email})
}
