// Package web renders the server-side HTML pages from embedded templates.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/clubllm/backend/internal/service/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names.
const (
	PageIndex     = "index"
	PageLogin     = "login"
	PageSignup    = "signup"
	PageDashboard = "dashboard"
)

// PageData is the view model shared by every page.
type PageData struct {
	Title   string
	User    *session.Identity
	Email   string
	Flashes []Flash
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{PageIndex, PageLogin, PageSignup, PageDashboard} {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages}, nil
}

// Render writes page with status. The caller's identity and any pending flash
// notice are filled in from the request.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	tmpl, ok := rd.pages[page]
	if !ok {
		log.Ctx(r.Context()).Error().Str("page", page).Msg("[web] unknown page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if data.User == nil {
		if id, ok := session.IdentityFromContext(r.Context()); ok {
			data.User = &id
		}
	}
	if f, ok := PopFlash(w, r); ok {
		data.Flashes = append([]Flash{f}, data.Flashes...)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("page", page).Msg("[web] render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
