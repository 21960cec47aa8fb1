package web

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"messageboard/internal/adapters/http/middleware"
	"messageboard/internal/domain/identity"
)

//go:embed templates/*.html static/*
var assets embed.FS

// timeNow is a variable for testability.
var timeNow = time.Now

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// timeLayout is how message timestamps are shown.
const timeLayout = "Jan 2, 2006 3:04 PM"

// partials are parsed alongside every page.
var partials = []string{"templates/layout.html", "templates/feed_items.html"}

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.Logger(r.Context()).Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func funcMap(r *http.Request) template.FuncMap {
	id, signedIn := identity.FromContext(r.Context())
	return template.FuncMap{
		"csrfToken":   func() string { return csrf.Token(r) },
		"csrfField":   func() template.HTML { return csrf.TemplateField(r) },
		"isLoggedIn":  func() bool { return signedIn },
		"currentUser": func() string { return id.AuthorName() },
		"renderMarkdown": func(md string) template.HTML {
			var buf bytes.Buffer
			if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
				return template.HTML(template.HTMLEscapeString(md))
			}
			return template.HTML(buf.String())
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format(timeLayout)
		},
	}
}

func parsePage(r *http.Request, templateName string) (*template.Template, error) {
	files := append([]string{}, partials...)
	files = append(files, "templates/"+templateName)
	return template.New("layout.html").Funcs(funcMap(r)).ParseFS(assets, files...)
}

// renderTemplate renders a page inside the layout with the given status.
func renderTemplate(w http.ResponseWriter, r *http.Request, status int, templateName string, data any) {
	tpl, err := parsePage(r, templateName)
	if err != nil {
		internalError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("render_event", "event", "write_failed", "template", templateName, "error", err.Error())
	}
}

// renderFragment renders one named partial without the layout, for pushes
// over the live feed socket.
func renderFragment(r *http.Request, name string, data any) (string, error) {
	tpl, err := template.New(name).Funcs(funcMap(r)).ParseFS(assets, partials[1])
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
