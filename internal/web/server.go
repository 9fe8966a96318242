package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samvad-hq/samvad-flashcards/internal/domain"
	"github.com/samvad-hq/samvad-flashcards/internal/logger"
	"github.com/samvad-hq/samvad-flashcards/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

// Runner executes a keyword search end to end. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, keyword string, observe pipeline.Observer) (pipeline.Session, error)
}

// Server exposes the flashcards UI and its JSON API.
type Server struct {
	runner Runner
	log    logger.Logger
	hub    *hub
	tmpl   *template.Template
	now    func() time.Time

	running atomic.Bool

	mu      sync.RWMutex
	session *pipeline.Session
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) { s.log = logger.Ensure(log) }
}

// WithSession seeds the server with a previously generated session.
func WithSession(sess pipeline.Session) Option {
	return func(s *Server) { s.session = &sess }
}

// NewServer builds a server around runner.
func NewServer(runner Runner, opts ...Option) (*Server, error) {
	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"markdown": renderMarkdown,
		"inc":      func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		runner: runner,
		log:    logger.NopLogger{},
		tmpl:   tmpl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.log)
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.serve)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/flashcards", s.handleFlashcards).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("web server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown web server: %w", err)
	}
	return nil
}

// Session returns a copy of the current session, if any.
func (s *Server) Session() (pipeline.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return pipeline.Session{}, false
	}
	return *s.session, true
}

func (s *Server) setSession(sess pipeline.Session) {
	s.mu.Lock()
	s.session = &sess
	s.mu.Unlock()
}

type searchRequest struct {
	Keyword string `json:"keyword"`
}

type searchResponse struct {
	RunID      string `json:"run_id"`
	Keyword    string `json:"keyword"`
	Articles   int    `json:"articles"`
	Flashcards int    `json:"flashcards"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Message    string `json:"message"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Detail: err.Error()})
			return
		}
	} else {
		req.Keyword = r.FormValue("keyword")
	}

	keyword := strings.TrimSpace(req.Keyword)
	if keyword == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Please enter a search keyword"})
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "a search is already running"})
		return
	}
	defer s.running.Store(false)

	s.log.InfoObj("search started", "keyword", keyword)
	// a closed tab must not abort a run whose articles are already indexed
	sess, err := s.runner.Run(context.WithoutCancel(r.Context()), keyword, s.progress)
	if err != nil {
		s.log.ErrorObj("search failed", "search_error", map[string]any{
			"keyword": keyword,
			"error":   err.Error(),
		})
		s.hub.broadcast(Message{Type: "error", Content: err.Error()})
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:  "An error occurred: " + err.Error(),
			Detail: fmt.Sprintf("%+v", err),
		})
		return
	}
	s.setSession(sess)

	cards := sess.Flashcards()
	writeJSON(w, http.StatusOK, searchResponse{
		RunID:      sess.RunID,
		Keyword:    sess.Keyword,
		Articles:   len(sess.Articles),
		Flashcards: len(cards),
		Succeeded:  sess.Report.Succeeded,
		Failed:     sess.Report.Failed,
		Message:    fmt.Sprintf("Generated %d flashcards", len(cards)),
	})
}

func (s *Server) progress(p pipeline.Progress) {
	s.hub.broadcast(Message{Type: "progress", Stage: p.Stage, Percent: p.Percent, Content: p.Message})
}

type flashcardsResponse struct {
	Keyword    string             `json:"keyword"`
	Count      int                `json:"count"`
	Flashcards []domain.Flashcard `json:"flashcards"`
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.Session()
	cards := s.selectCards(sess, r)
	writeJSON(w, http.StatusOK, flashcardsResponse{Keyword: sess.Keyword, Count: len(cards), Flashcards: cards})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	sess, _ := s.Session()
	writeJSON(w, http.StatusOK, ComputeStats(sess.Flashcards()))
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	sess, ok := s.Session()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no flashcards to export"})
		return
	}

	body, err := json.MarshalIndent(sess.Flashcards(), "", "  ")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "encode flashcards", Detail: err.Error()})
		return
	}

	name := exportFilename(sess.Keyword, s.now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type indexView struct {
	Keyword    string
	HasSession bool
	Stats      Stats
	Flashcards []domain.Flashcard
	Selected   map[string]bool
	Desc       bool
	Levels     []string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.Session()
	selected := make(map[string]bool)
	for _, d := range difficultyParam(r.URL.Query()["difficulty"]) {
		selected[strings.ToLower(d)] = true
	}

	view := indexView{
		Keyword:    sess.Keyword,
		HasSession: ok,
		Stats:      ComputeStats(sess.Flashcards()),
		Flashcards: s.selectCards(sess, r),
		Selected:   selected,
		Desc:       r.URL.Query().Get("sort") == "desc",
		Levels:     domain.Difficulties,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", view); err != nil {
		s.log.ErrorObj("render index failed", "error", err.Error())
	}
}

func (s *Server) selectCards(sess pipeline.Session, r *http.Request) []domain.Flashcard {
	q := r.URL.Query()
	cards := FilterCards(sess.Flashcards(), difficultyParam(q["difficulty"]))
	SortCards(cards, q.Get("sort") == "desc")
	return cards
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
