package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"trafficsentinel/internal/logger"
)

var pages = []string{"index", "result", "history", "login"}

// Renderer executes the page templates inside the shared layout.
type Renderer struct {
	templates   map[string]*template.Template
	authEnabled bool
	logger      *logger.Logger
}

type pageData struct {
	Title       string
	Flashes     []Flash
	AuthEnabled bool
	Data        interface{}
}

var templateFuncs = template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"mul": func(a, b float64) float64 { return a * b },
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
	"add64": func(a, b int64) int64 {
		return a + b
	},
	"fmtTime": func(t time.Time) string {
		return t.Local().Format("2006-01-02 15:04")
	},
	"bytes":        storageSize,
	"densityClass": densityClass,
}

func NewRenderer(fsys fs.FS, authEnabled bool, logger *logger.Logger) (*Renderer, error) {
	r := &Renderer{
		templates:   make(map[string]*template.Template, len(pages)),
		authEnabled: authEnabled,
		logger:      logger,
	}
	for _, page := range pages {
		t, err := template.New(page).Funcs(templateFuncs).ParseFS(fsys, "layout.html", page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		r.templates[page] = t
	}
	return r, nil
}

// Render writes a full page. Pending flash messages are consumed.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, status int, page, title string, data interface{}) {
	t, ok := r.templates[page]
	if !ok {
		r.logger.Error("Unknown template %s", page)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	err := t.ExecuteTemplate(&buf, "layout", pageData{
		Title:       title,
		Flashes:     popFlashes(w, req),
		AuthEnabled: r.authEnabled,
		Data:        data,
	})
	if err != nil {
		r.logger.Error("Error rendering %s: %v", page, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func densityClass(density float64) string {
	switch {
	case density < 30:
		return "density-low"
	case density < 70:
		return "density-medium"
	default:
		return "density-high"
	}
}

// storageSize formats a byte count with binary units.
func storageSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
