package server

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"crusty-reader/internal/model"
	"crusty-reader/internal/pagination"
	"crusty-reader/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Ingester runs the synchronous save pipeline.
type Ingester interface {
	Save(ctx context.Context, rawURL string) (*model.Article, bool, error)
}

// Jobs is the asynchronous ingestion queue.
type Jobs interface {
	Enqueue(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PageSize     int
}

type Server struct {
	store     store.Store
	ingester  Ingester
	jobs      Jobs
	paginator *pagination.Paginator
	cfg       Config
	logger    *zap.Logger
	router    *mux.Router
	server    *http.Server
	pages     map[string]*template.Template
}

// NewServer wires the routes. jobs may be nil, which disables the queue
// endpoints.
func NewServer(cfg Config, st store.Store, ingester Ingester, jobs Jobs, logger *zap.Logger) (*Server, error) {
	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = pagination.DefaultLimit
	}
	s := &Server{
		store:     st,
		ingester:  ingester,
		jobs:      jobs,
		paginator: pagination.NewPaginator(st, logger),
		cfg:       cfg,
		logger:    logger,
		router:    mux.NewRouter(),
		pages:     pages,
	}
	s.routes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func parseTemplates() (map[string]*template.Template, error) {
	pages := map[string]*template.Template{}
	for _, name := range []string{"list.html", "read.html", "error.html"} {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, err
		}
		pages[name] = t
	}
	return pages, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/post", s.handlePost).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs", s.handleEnqueue).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs/{id}", s.handleJob).Methods(http.MethodGet)

	s.router.HandleFunc("/r/{id:[0-9]+}", s.handleRead).Methods(http.MethodGet)
	s.router.HandleFunc("/r/{id:[0-9]+}", s.handleDelete).Methods(http.MethodDelete)
	s.router.HandleFunc("/r/{id:[0-9]+}", s.handleMethodOverride).Methods(http.MethodPost)
	s.router.HandleFunc("/r/{id:[0-9]+}/mark-read", s.handleMarkRead).Methods(http.MethodPost)
	s.router.HandleFunc("/favorite/{id:[0-9]+}", s.handleFavorite).Methods(http.MethodPost)
	s.router.HandleFunc("/random", s.handleRandom).Methods(http.MethodGet)

	for _, p := range []pagination.Predicate{pagination.All, pagination.Unread, pagination.Favorites} {
		s.router.HandleFunc("/"+string(p), s.handleList(p)).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/sitemap.xml", s.handleSitemap).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Page not found")
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Web server listening", zap.String("addr", s.cfg.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
