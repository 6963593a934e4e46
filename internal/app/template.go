package app

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin/render"

	"github.com/simp-lee/userdir/internal/domain"
	"github.com/simp-lee/userdir/internal/module/user"
)

// TemplateRenderer is the gin HTML renderer. Every page under templates/ is
// compiled on top of a shared set of layouts and partials, so a page can
// invoke {{ template "base" . }} and fill its blocks, while htmx fragments
// simply render without the layout.
//
// In debug mode templates are re-parsed on every render; in release mode they
// are parsed once by NewTemplateRenderer.
type TemplateRenderer struct {
	templates map[string]*template.Template // page name -> compiled set, release mode only
	fs        fs.FS                         // contains the templates/ directory
	funcMap   template.FuncMap
	debug     bool
}

var _ render.HTMLRender = (*TemplateRenderer)(nil)

// NewTemplateRenderer creates a TemplateRenderer reading from fsys, which must
// hold templates/layouts/*.html, templates/partials/*.html and page templates
// in per-module directories such as templates/user/. A parse error fails
// construction in release mode and the render in debug mode.
func NewTemplateRenderer(fsys fs.FS, debug bool) (*TemplateRenderer, error) {
	r := &TemplateRenderer{
		fs:      fsys,
		funcMap: templateFuncMap(),
		debug:   debug,
	}

	if !debug {
		templates, err := r.parseAllTemplates()
		if err != nil {
			return nil, fmt.Errorf("parse templates: %w", err)
		}
		r.templates = templates
	}

	return r, nil
}

// Instance implements render.HTMLRender. name is relative to templates/, for
// example "user/list.html" or "user/modal_fragment.html".
func (r *TemplateRenderer) Instance(name string, data any) render.Render {
	templates := r.templates
	if r.debug {
		var err error
		if templates, err = r.parseAllTemplates(); err != nil {
			return &HTMLInstance{Name: name, err: err}
		}
	}
	return &HTMLInstance{
		Template: templates[name],
		Name:     name,
		Data:     data,
	}
}

// parseAllTemplates returns every page template keyed by its name, each
// compiled on a clone of the layouts and partials.
func (r *TemplateRenderer) parseAllTemplates() (map[string]*template.Template, error) {
	var baseFiles []string
	for _, pattern := range []string{"templates/layouts/*.html", "templates/partials/*.html"} {
		matches, err := fs.Glob(r.fs, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		baseFiles = append(baseFiles, matches...)
	}

	base := template.New("").Funcs(r.funcMap)
	for _, f := range baseFiles {
		if err := parseFile(base, r.fs, f, f); err != nil {
			return nil, err
		}
	}

	pageFiles, err := r.discoverPageTemplates()
	if err != nil {
		return nil, fmt.Errorf("discover pages: %w", err)
	}

	templates := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone base for %s: %w", pf, err)
		}
		name := strings.TrimPrefix(pf, "templates/")
		if err := parseFile(clone, r.fs, pf, name); err != nil {
			return nil, err
		}
		templates[name] = clone
	}

	return templates, nil
}

func parseFile(set *template.Template, fsys fs.FS, path, name string) error {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := set.New(name).Parse(string(content)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// discoverPageTemplates lists the .html files under templates/ outside
// layouts/ and partials/.
func (r *TemplateRenderer) discoverPageTemplates() ([]string, error) {
	var pages []string
	err := fs.WalkDir(r.fs, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		rel := strings.TrimPrefix(path, "templates/")
		if strings.HasPrefix(rel, "layouts/") || strings.HasPrefix(rel, "partials/") {
			return nil
		}
		pages = append(pages, path)
		return nil
	})
	return pages, err
}

// templateFuncMap returns the helper functions available to every template.
func templateFuncMap() template.FuncMap {
	return template.FuncMap{
		// json marshals v for embedding in JavaScript or hx-vals attributes.
		"json": func(v any) template.JS {
			b, err := json.Marshal(v)
			if err != nil {
				return template.JS("null")
			}
			return template.JS(b)
		},

		"formatAddress": user.FormatAddress,
		"formatPhone":   user.FormatPhone,
		"websiteURL":    user.WebsiteURL,
		"isValidURL":    user.IsValidURL,

		// mapsURL links the geo coordinates of an address to a map view.
		"mapsURL": func(g domain.Geo) string {
			return "https://www.google.com/maps?q=" + url.QueryEscape(g.Lat+","+g.Lng)
		},

		// initials returns up to two uppercase initials of name, used when an
		// avatar image fails to load.
		"initials": func(name string) string {
			var out []rune
			for _, f := range strings.Fields(name) {
				r, _ := utf8.DecodeRuneInString(f)
				out = append(out, unicode.ToUpper(r))
				if len(out) == 2 {
					break
				}
			}
			return string(out)
		},
	}
}

// HTMLInstance implements gin's render.Render interface for a single template
// execution. It is returned by TemplateRenderer.Instance.
type HTMLInstance struct {
	Template *template.Template
	Name     string
	Data     any
	err      error // set when template parsing failed (debug mode)
}

const htmlContentType = "text/html; charset=utf-8"

// Render writes the template output to the HTTP response writer.
func (h *HTMLInstance) Render(w http.ResponseWriter) error {
	h.WriteContentType(w)
	if h.err != nil {
		return h.err
	}
	if h.Template == nil {
		return fmt.Errorf("template %q not found", h.Name)
	}
	return h.Template.ExecuteTemplate(w, h.Name, h.Data)
}

// WriteContentType sets the Content-Type header to text/html; charset=utf-8
// if it has not already been set.
func (h *HTMLInstance) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = []string{htmlContentType}
	}
}
