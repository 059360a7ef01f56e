package app

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"kjtimes/internal/article"
	"kjtimes/internal/cache"
	"kjtimes/internal/logger"
	"kjtimes/internal/metrics"
)

// Articles is the reader side of article.Store.
type Articles interface {
	Latest(ctx context.Context, limit int) ([]article.Summary, error)
	Popular(ctx context.Context, limit int) ([]article.Summary, error)
	ByCategory(ctx context.Context, categorySlug string, includeShared bool, limit int) ([]article.Summary, error)
	PublicByID(ctx context.Context, id string) (*article.Article, error)
	PublicBySlug(ctx context.Context, slug string) (*article.Article, error)
	Related(ctx context.Context, categoryID, excludeID string, limit int) ([]article.Summary, error)
	ByTag(ctx context.Context, tag, excludeID string, limit int) ([]article.Summary, error)
	ByAuthor(ctx context.Context, authorID, excludeID string, limit int) ([]article.Summary, error)
	TagsFor(ctx context.Context, articleID string, limit int) ([]string, error)
	Search(ctx context.Context, p article.SearchParams) ([]article.Summary, error)
	IncrementViews(ctx context.Context, id string) error
	SitemapEntries(ctx context.Context, limit int) ([]article.SitemapEntry, error)
	NewsSitemapEntries(ctx context.Context, since time.Time) ([]article.SitemapEntry, error)
}

// Pinger reports database health for /healthz. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the reader site. Cache, Metrics, API and DB
// are optional.
type Deps struct {
	Articles Articles
	Cache    cache.Cache
	Metrics  *metrics.Metrics
	Log      logger.Logger
	// API serves everything under /api/, normally the CMS.
	API http.Handler
	DB  Pinger
}

// Server wires handlers, templates, and external dependencies together.
type Server struct {
	cfg       Config
	articles  Articles
	cache     cache.Cache
	metrics   *metrics.Metrics
	log       logger.Logger
	api       http.Handler
	db        Pinger
	templates *template.Template
	mux       *http.ServeMux
	handler   http.Handler
	pageGroup singleflight.Group
	now       func() time.Time
}

// NewServer constructs the reader site handler.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:       cfg,
		articles:  deps.Articles,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		log:       deps.Log,
		api:       deps.API,
		db:        deps.DB,
		templates: tmpl,
		mux:       http.NewServeMux(),
		now:       time.Now,
	}
	if srv.cache == nil {
		srv.cache = cache.Nop{}
	}
	if srv.log == nil {
		srv.log = logger.NewNop()
	}

	srv.mux.HandleFunc("GET /{$}", srv.handleHome)
	for _, sec := range sections {
		srv.mux.HandleFunc("GET /"+sec.Slug, srv.handleCategory(sec))
	}
	srv.mux.HandleFunc("GET /"+article.SpecialEditionSlug, srv.handleSpecialEdition)
	srv.mux.HandleFunc("GET /article/{id}", srv.handleArticle)
	srv.mux.HandleFunc("GET /share/{slug}", srv.handleShare)
	srv.mux.HandleFunc("GET /search", srv.handleSearch)
	for slug := range staticPages {
		srv.mux.HandleFunc("GET /"+slug, srv.handleStaticPage(slug))
	}
	srv.mux.HandleFunc("GET /sitemap.xml", srv.handleSitemap)
	srv.mux.HandleFunc("GET /news-sitemap.xml", srv.handleNewsSitemap)
	srv.mux.HandleFunc("GET /robots.txt", srv.handleRobots)
	srv.mux.HandleFunc("GET /healthz", srv.handleHealth)
	srv.mux.Handle("GET /static/", http.FileServerFS(staticFS))
	if srv.metrics != nil {
		srv.mux.Handle("GET /metrics", srv.metrics.Handler())
	}
	if srv.api != nil {
		srv.mux.Handle("/api/", srv.api)
	}
	srv.mux.HandleFunc("/", srv.handleNotFound)

	srv.handler = srv.logRequests(srv.gate(srv.withDevice(recordRoute(srv.mux))))
	return srv, nil
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// render executes a template into a buffer so a failing template never
// leaves a half-written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("Render template failed", logger.String("template", name),
			logger.String("path", r.URL.Path), logger.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.log.Error("Request failed", logger.String("op", op),
		logger.String("path", r.URL.Path), logger.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "notfound.gohtml", struct{ Meta pageMeta }{
		Meta: s.meta(r, "페이지를 찾을 수 없습니다", ""),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.log.Warn("Health check failed", logger.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// cached reads key from the page cache, building and storing it on a miss.
// Concurrent misses for the same key share one build.
func cached[T any](ctx context.Context, s *Server, key string, ttl time.Duration, build func(context.Context) (T, error)) (T, error) {
	var v T
	err := s.cache.GetJSON(ctx, key, &v)
	if err == nil {
		s.metrics.CacheResult(true)
		return v, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn("Cache read failed", logger.String("key", key), logger.Error(err))
	}
	s.metrics.CacheResult(false)

	res, err, _ := s.pageGroup.Do(key, func() (any, error) {
		built, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetJSON(ctx, key, built, ttl); err != nil {
			s.log.Warn("Cache write failed", logger.String("key", key), logger.Error(err))
		}
		return built, nil
	})
	if err != nil {
		return v, err
	}
	return res.(T), nil
}
