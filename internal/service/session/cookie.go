package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const CookieName = "clubllm_session"

// Manager ties the store, the token signer and the session cookie together.
type Manager struct {
	store  *Service
	tokens *Tokens
	secure bool
}

// NewManager wires store and tokens; secure marks the cookie HTTPS-only.
func NewManager(store *Service, tokens *Tokens, secure bool) *Manager {
	return &Manager{store: store, tokens: tokens, secure: secure}
}

// Ticket is a freshly started session. Token is the signed value carried by
// the cookie; API clients may send it back as a Bearer token instead.
type Ticket struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
}

// Start replaces any session on the client with a fresh one for userID.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request, userID, email string) (Ticket, error) {
	m.drop(r)

	sess, err := m.store.Create(r.Context(), userID, email)
	if err != nil {
		return Ticket{}, err
	}

	token, err := m.tokens.Issue(sess)
	if err != nil {
		m.store.Delete(r.Context(), sess.ID)
		return Ticket{}, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.store.TTL().Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return Ticket{
		Identity:  Identity{SessionID: sess.ID, UserID: sess.UserID, Email: sess.Email},
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Resolve returns the identity behind the request's Bearer token or session
// cookie. A missing, forged, expired or logged-out token all resolve to
// "no identity".
func (m *Manager) Resolve(r *http.Request) (Identity, bool) {
	claims, err := m.claims(r)
	if err != nil {
		return Identity{}, false
	}

	sess, err := m.store.Get(r.Context(), claims.SessionID)
	if err != nil {
		log.Ctx(r.Context()).Debug().Err(err).Msg("[session] cookie refers to no live session")
		return Identity{}, false
	}
	if sess.UserID != claims.Subject {
		return Identity{}, false
	}

	return Identity{SessionID: sess.ID, UserID: sess.UserID, Email: sess.Email}, true
}

// End destroys the request's session and clears the cookie.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) {
	m.drop(r)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) drop(r *http.Request) {
	claims, err := m.claims(r)
	if err != nil {
		return
	}
	m.store.Delete(r.Context(), claims.SessionID)
}

// claims reads an "Authorization: Bearer" token first, then the cookie.
func (m *Manager) claims(r *http.Request) (*Claims, error) {
	if raw, ok := bearerToken(r); ok {
		return m.tokens.Parse(raw)
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, err
	}
	if cookie.Value == "" {
		return nil, http.ErrNoCookie
	}
	return m.tokens.Parse(cookie.Value)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
