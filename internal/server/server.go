// Package server is the local web viewer for stored research runs.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/painscout/internal/database"
	"github.com/TobiSchelling/painscout/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// RunListLimit caps the runs shown on the index page.
const RunListLimit = 100

// Server is the HTTP server for browsing runs.
type Server struct {
	db    *database.DB
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"short": func(id string) string {
			if len(id) > 8 {
				return id[:8]
			}
			return id
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/run/", s.handleRun)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	runs, err := s.db.ListRuns(RunListLimit)
	if err != nil {
		log.Printf("Listing runs: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, _ := s.db.GetStats()

	s.render(w, "index.html", map[string]any{
		"Runs":  runs,
		"Stats": stats,
	})
}

// handleRun serves /run/{id} and POST /run/{id}/delete.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/run/"), "/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if action == "delete" {
		if r.Method != http.MethodPost {
			http.Redirect(w, r, "/run/"+id, http.StatusFound)
			return
		}
		if err := s.db.DeleteRun(id); err != nil {
			log.Printf("Deleting run %s: %v", id, err)
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if action != "" {
		http.NotFound(w, r)
		return
	}

	run, err := s.db.GetRun(id)
	if err != nil {
		log.Printf("Loading run %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "run.html", map[string]any{
		"Run":    run,
		"Report": s.reportMarkdown(run),
	})
}

// reportMarkdown returns the stored report, rebuilding it from the stored rows
// for runs saved without one.
func (s *Server) reportMarkdown(run *database.Run) string {
	if run.ReportMarkdown != nil && *run.ReportMarkdown != "" {
		return *run.ReportMarkdown
	}
	if run.Status != database.RunDone {
		return ""
	}
	signals, err := s.db.GetRunSignals(run.ID)
	if err != nil {
		log.Printf("Loading signals of run %s: %v", run.ID, err)
	}
	clusters, err := s.db.GetRunClusters(run.ID)
	if err != nil {
		log.Printf("Loading clusters of run %s: %v", run.ID, err)
	}
	counts, err := s.db.GetRunStageCounts(run.ID)
	if err != nil {
		log.Printf("Loading stage counts of run %s: %v", run.ID, err)
	}
	return report.Markdown(report.Input{Run: run, Counts: counts, Signals: signals, Clusters: clusters})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on host:port.
func Serve(db *database.DB, host string, port int) error {
	srv, err := New(db)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
