package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/clubllm/backend/internal/model/user"
	"github.com/zhouzirui/clubllm/backend/internal/service/identity"
	"github.com/zhouzirui/clubllm/backend/internal/service/session"
	"github.com/zhouzirui/clubllm/backend/pkg/utils"
)

// JSON 接口错误文案
const (
	MsgInvalidBody        = "Invalid request body"
	MsgCredentialsMissing = "Email and password are required"
	MsgInvalidEmail       = "Email address is invalid"
	MsgPasswordTooShort   = "Password must be at least 6 characters long"
	MsgPasswordTooLong    = "Password must be at most 72 characters long"
	MsgEmailTooLong       = "Email address is too long"
	MsgInvalidLogin       = "Invalid email or password"
	MsgEmailTaken         = "User with this email already exists"
	MsgSignupError        = "Failed to create account"
	MsgInternal           = "Internal server error"
	MsgAuthRequired       = "Authentication required"
	MsgUserNotFound       = "User not found"
	MsgLoggedOut          = "Logged out successfully"
)

type accountView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func viewOf(u user.User) accountView {
	return accountView{ID: u.ID, Email: u.Email}
}

// AuthResponse is returned by the JSON login and signup routes. Token is the
// session cookie's value, usable as "Authorization: Bearer <token>".
type AuthResponse struct {
	Success   bool        `json:"success"`
	User      accountView `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expiresAt"`
}

type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type meEnvelope struct {
	User accountView `json:"user"`
}

// decodeJSON 解析请求体，失败时已写出 400
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, MsgInvalidBody)
		return false
	}
	return true
}

// validationMessage maps the first failed rule to a caller-facing message.
func validationMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return MsgInvalidBody
	}
	fe := fields[0]
	switch {
	case fe.Tag() == "required":
		return MsgCredentialsMissing
	case fe.Field() == "Email" && fe.Tag() == "max":
		return MsgEmailTooLong
	case fe.Field() == "Email":
		return MsgInvalidEmail
	case fe.Tag() == "min":
		return MsgPasswordTooShort
	case fe.Tag() == "max":
		return MsgPasswordTooLong
	}
	return MsgInvalidBody
}

func (h *Handler) respondTicket(w http.ResponseWriter, status int, u user.User, ticket session.Ticket) {
	utils.RespondJSON(w, status, AuthResponse{
		Success:   true,
		User:      viewOf(u),
		Token:     ticket.Token,
		ExpiresAt: ticket.ExpiresAt.Unix(),
	})
}

// apiLogin POST /api/auth/login
func (h *Handler) apiLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form loginForm
	if !decodeJSON(w, r, &form) {
		return
	}
	form.Email = strings.TrimSpace(form.Email)
	if form.Email == "" || form.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, MsgCredentialsMissing)
		return
	}

	u, err := h.accounts.Authenticate(ctx, form.Email, form.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrInvalidInput) {
			log.Ctx(ctx).Info().Err(err).Msg("[auth] api login rejected")
			utils.RespondError(w, http.StatusUnauthorized, MsgInvalidLogin)
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("[auth] api login failed")
		utils.RespondError(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	ticket, err := h.sessions.Start(w, r, u.ID, u.Email)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("[auth] start session failed")
		utils.RespondError(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	log.Ctx(ctx).Info().Str("user_id", u.ID).Msg("[auth] api login succeeded")
	h.respondTicket(w, http.StatusOK, u, ticket)
}

// apiSignup POST /api/auth/signup，成功后直接登录
func (h *Handler) apiSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form signupForm
	if !decodeJSON(w, r, &form) {
		return
	}
	form.Email = strings.TrimSpace(form.Email)
	if err := h.validate.Struct(form); err != nil {
		log.Ctx(ctx).Info().Err(err).Msg("[auth] api signup rejected")
		utils.RespondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	u, err := h.accounts.Create(ctx, form.Email, form.Password)
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		utils.RespondError(w, http.StatusConflict, MsgEmailTaken)
		return
	case errors.Is(err, identity.ErrInvalidInput):
		utils.RespondError(w, http.StatusBadRequest, MsgCredentialsMissing)
		return
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Msg("[auth] api signup failed")
		utils.RespondError(w, http.StatusInternalServerError, MsgSignupError)
		return
	}

	ticket, err := h.sessions.Start(w, r, u.ID, u.Email)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("[auth] start session failed")
		utils.RespondError(w, http.StatusInternalServerError, MsgSignupError)
		return
	}

	log.Ctx(ctx).Info().Str("user_id", u.ID).Msg("[auth] api account created")
	h.respondTicket(w, http.StatusCreated, u, ticket)
}

// apiLogout GET /api/auth/logout，无会话时同样成功
func (h *Handler) apiLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(w, r)
	utils.RespondJSON(w, http.StatusOK, logoutResponse{Success: true, Message: MsgLoggedOut})
}

// apiMe GET /api/auth/me. The identity comes from LoadSession, which accepts
// either the cookie or a Bearer token.
func (h *Handler) apiMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := session.IdentityFromContext(ctx)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, MsgAuthRequired)
		return
	}

	u, err := h.accounts.GetByID(ctx, id.UserID)
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		utils.RespondError(w, http.StatusNotFound, MsgUserNotFound)
		return
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Msg("[auth] load account failed")
		utils.RespondError(w, http.StatusInternalServerError, MsgInternal)
		return
	}
	utils.RespondJSON(w, http.StatusOK, meEnvelope{User: viewOf(u)})
}
