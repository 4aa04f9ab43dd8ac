package api

import (
	"bytes"
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.io/infrasutra/portfolio/internal/content"
	"github.io/infrasutra/portfolio/internal/pagination"
	"github.io/infrasutra/portfolio/internal/roles"
	"github.io/infrasutra/portfolio/internal/sse"
	"github.io/infrasutra/portfolio/internal/store"
)

// RelayPaths are the URLs the contact relay answers on. The second keeps
// forms built for the hosted-functions deployment working.
var RelayPaths = []string{"/api/contact", "/.netlify/functions/send-email"}

// Sink exposes the capture sink's mailbox over HTTP. A nil Sink leaves the
// /api/sink routes unregistered.
type Sink struct {
	Store *store.Store
	Hub   *sse.Hub
}

type Server struct {
	site     *content.Site
	sink     *Sink
	logger   *slog.Logger
	mux      *http.ServeMux
	handler  http.Handler
	staticFS fs.FS
}

func NewServer(site *content.Site, relay http.Handler, sink *Sink, staticFS fs.FS, logger *slog.Logger) *Server {
	if staticFS == nil {
		logger.Warn("site assets not embedded")
	}
	server := &Server{
		site:     site,
		sink:     sink,
		logger:   logger,
		staticFS: staticFS,
	}

	mux := http.NewServeMux()
	for _, p := range RelayPaths {
		mux.Handle(p, relay)
	}
	mux.HandleFunc("GET /api/roles", server.handleRoles)
	mux.HandleFunc("GET /api/projects", server.handleProjects)
	mux.HandleFunc("GET /api/skills", server.handleSkills)
	if sink != nil {
		mux.HandleFunc("GET /api/sink/messages", server.handleSinkMessages)
		mux.HandleFunc("GET /api/sink/messages/{id}", server.handleSinkMessage)
		mux.HandleFunc("DELETE /api/sink/messages/{id}", server.handleSinkDelete)
		mux.HandleFunc("GET /api/sink/messages/{id}/raw", server.handleSinkRaw)
		mux.HandleFunc("GET /api/sink/stream", server.handleSinkStream)
	}
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		server.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	mux.HandleFunc("GET /health", server.handleHealth)
	mux.HandleFunc("GET /ready", server.handleReady)
	mux.HandleFunc("/", server.serveStatic)
	server.mux = mux

	m := &middleware{logger: logger}
	server.handler = m.RequestID(m.Logger(m.Recover(mux)))
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleRoles(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"roles":       s.site.Roles,
		"placeholder": roles.Placeholder(s.site.Roles),
		"width":       roles.Width(s.site.Roles),
	})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromQuery(r.URL.Query(), pagination.WithDefaultLimit(int32(len(s.site.Projects))))
	window := pagination.Slice(s.site.Projects, params)
	cards := content.Gallery(window, int(params.Offset))
	s.respondJSON(w, http.StatusOK, pagination.NewPage(cards, params, int32(len(s.site.Projects))))
}

func (s *Server) handleSkills(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"categories":   s.site.Skills,
		"competencies": s.site.Competencies,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusOK, "ok")
}

// handleReady fails while the sink database cannot be reached.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.sink != nil {
		if err := s.sink.Store.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			s.respondText(w, http.StatusServiceUnavailable, "sink store unavailable")
			return
		}
	}
	s.respondText(w, http.StatusOK, "ready")
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.staticFS == nil {
		s.respondText(w, http.StatusNotFound, "site assets not embedded")
		return
	}

	cleaned := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if cleaned == "" {
		cleaned = "index.html"
	}
	if s.serveEmbeddedFile(w, r, cleaned) {
		return
	}
	// Files with an extension are real assets; only page routes fall back.
	if path.Ext(cleaned) != "" {
		http.NotFound(w, r)
		return
	}
	if s.serveEmbeddedFile(w, r, "index.html") {
		return
	}
	s.respondText(w, http.StatusNotFound, "site assets not embedded")
}

func (s *Server) serveEmbeddedFile(w http.ResponseWriter, r *http.Request, name string) bool {
	file, err := s.staticFS.Open(name)
	if err != nil {
		return false
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	if seeker, ok := file.(io.ReadSeeker); ok {
		http.ServeContent(w, r, info.Name(), info.ModTime(), seeker)
		return true
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), bytes.NewReader(data))
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
