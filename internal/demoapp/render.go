package demoapp

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer executes page templates layered over templates/base.html.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses base.html together with each page template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}

	base, err := fs.ReadFile(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read base template: %w", err)
	}

	pages, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	for _, page := range pages {
		name := path.Base(page)
		if name == "base.html" {
			continue
		}
		content, err := fs.ReadFile(templateFS, page)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl := template.New("base").Funcs(funcMap())
		if tmpl, err = tmpl.Parse(string(base)); err != nil {
			return nil, fmt.Errorf("failed to parse base template for %s: %w", name, err)
		}
		if tmpl, err = tmpl.Parse(string(content)); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	if len(r.templates) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	return r, nil
}

// Render executes the named page with data and the given status code.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}

	// Execute into a buffer so a template failure can still become a 500.
	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write([]byte(buf.String()))
	return err
}

// RenderError renders the error page, falling back to plain text.
func (r *Renderer) RenderError(w http.ResponseWriter, code int, message string) {
	data := pageData{Error: message, ErrorCode: http.StatusText(code)}
	if err := r.Render(w, code, "error.html", data); err != nil {
		http.Error(w, fmt.Sprintf("Error %d: %s", code, message), code)
	}
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"plural": plural,
	}
}

// plural returns "1 item" or "n items".
func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
