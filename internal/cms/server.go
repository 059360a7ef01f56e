// Package cms is the newsroom admin JSON API, mounted under /api.
package cms

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kjtimes/internal/article"
	"kjtimes/internal/auth"
	"kjtimes/internal/logger"
	"kjtimes/internal/mail"
	"kjtimes/internal/media"
	"kjtimes/internal/metrics"
	"kjtimes/internal/newsfactory"
	"kjtimes/internal/pressrelease"
)

// Articles is the admin side of article.Store.
type Articles interface {
	List(ctx context.Context, p article.ListParams) (article.ListResult, error)
	Stats(ctx context.Context) (article.Stats, error)
	Get(ctx context.Context, id string) (*article.Article, error)
	ChangeStatus(ctx context.Context, id string, target article.Status) (article.Status, error)
	Delete(ctx context.Context, ids ...string) (int64, error)
	Clone(ctx context.Context, id, authorID string) (string, error)
	Categories(ctx context.Context) ([]article.Category, error)
	Tags(ctx context.Context) ([]article.Tag, error)
}

// SlugGenerator produces internal slugs. *article.Generator satisfies it.
type SlugGenerator interface {
	Generate(ctx context.Context, categoryID, title, excludeID string) (article.GeneratedSlug, error)
}

// Authenticator checks CMS credentials. *auth.Store satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (auth.Profile, error)
}

// MediaLibrary is implemented by *media.Library.
type MediaLibrary interface {
	Upload(ctx context.Context, up media.Upload) (media.Item, error)
	List(ctx context.Context, search string, limit int) ([]media.Item, error)
	Delete(ctx context.Context, id string) error
}

// Mailbox reads the tip inbox. *mail.Reader satisfies it.
type Mailbox interface {
	Inbox(limit, offset int) (mail.Inbox, error)
	Message(uid uint32) (mail.Detail, error)
}

// MailSender is implemented by *mail.Sender.
type MailSender interface {
	Send(ctx context.Context, o mail.Outgoing) (string, error)
	Reply(ctx context.Context, originalFrom, originalSubject string, o mail.Outgoing) (string, error)
}

// FactoryImporter is implemented by *newsfactory.Importer.
type FactoryImporter interface {
	Import(ctx context.Context, a newsfactory.Article) (string, error)
	Receive(ctx context.Context, a newsfactory.Article) (string, error)
}

// PressReleases is implemented by *pressrelease.Store.
type PressReleases interface {
	List(ctx context.Context, status pressrelease.Status, limit int) ([]pressrelease.Release, error)
	Get(ctx context.Context, id string) (pressrelease.Release, error)
	SaveGenerated(ctx context.Context, id string, g pressrelease.Generated) error
	MarkPublished(ctx context.Context, id string) error
}

// Deps wires the API. Optional groups (media, mail, factory, press releases)
// are only mounted when their dependency is set.
type Deps struct {
	Articles Articles
	Editor   article.Saver
	Slugs    SlugGenerator
	Sessions *article.SessionManager
	Auth     Authenticator
	JWT      *auth.JWTManager

	Media    MediaLibrary
	Mailbox  Mailbox
	Mail     MailSender
	Factory  *newsfactory.Client
	Importer FactoryImporter
	Press    PressReleases

	// ReceiveSecret guards POST /api/news/receive. Empty disables it.
	ReceiveSecret string
	SecureCookies bool

	Metrics *metrics.Metrics
	Log     logger.Logger
}

// Server holds the API handlers.
type Server struct {
	deps Deps
	log  logger.Logger
}

// New builds a Server.
func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{deps: deps, log: log}
}

// Handler returns the gin engine serving /api.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.Register(r)
	return r
}

// Register mounts every route on r.
func (s *Server) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/auth/login", s.login)
	api.POST("/auth/logout", s.logout)
	api.POST("/news/receive", s.receiveNews)

	admin := api.Group("/admin", auth.Middleware(s.deps.JWT))
	admin.GET("/me", s.me)

	admin.GET("/articles", s.listArticles)
	admin.GET("/articles/stats", s.articleStats)
	admin.POST("/articles", s.createArticle)
	admin.POST("/articles/slug", s.generateSlug)
	admin.POST("/articles/bulk-status", s.bulkStatus)
	admin.POST("/articles/bulk-delete", s.bulkDelete)
	admin.GET("/articles/:id", s.getArticle)
	admin.PUT("/articles/:id", s.updateArticle)
	admin.PATCH("/articles/:id/status", s.changeStatus)
	admin.DELETE("/articles/:id", s.deleteArticle)
	admin.POST("/articles/:id/clone", s.cloneArticle)

	admin.GET("/categories", s.listCategories)
	admin.GET("/tags", s.listTags)

	if s.deps.Sessions != nil {
		admin.POST("/drafts", s.openDraft)
		admin.GET("/drafts/:id", s.draftState)
		admin.PUT("/drafts/:id", s.updateDraft)
		admin.POST("/drafts/:id/save", s.saveDraft)
		admin.DELETE("/drafts/:id", s.closeDraft)
	}
	if s.deps.Media != nil {
		admin.GET("/media", s.listMedia)
		admin.POST("/media", s.uploadMedia)
		admin.DELETE("/media/:id", s.deleteMedia)
	}
	if s.deps.Mailbox != nil && s.deps.Mail != nil {
		admin.GET("/mail/inbox", s.inbox)
		admin.GET("/mail/messages/:uid", s.mailMessage)
		admin.POST("/mail/send", s.sendMail)
		admin.POST("/mail/messages/:uid/reply", s.replyMail)
	}
	if s.deps.Factory != nil {
		admin.Any("/nf/*path", s.proxyFactory)
	}
	if s.deps.Importer != nil {
		admin.POST("/factory/import", s.importFactoryArticle)
	}
	if s.deps.Press != nil {
		admin.GET("/press-releases", s.listPressReleases)
		admin.GET("/press-releases/:id", s.getPressRelease)
		admin.PUT("/press-releases/:id", s.updatePressRelease)
		admin.POST("/press-releases/:id/publish", s.publishPressRelease)
	}
}

// requestLogger logs each request once and records route metrics.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveRequest(route, status, elapsed)

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Duration("duration", elapsed),
			logger.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			msgs := make([]string, len(c.Errors))
			for i, e := range c.Errors {
				msgs[i] = e.Err.Error()
			}
			fields = append(fields, logger.Strings("errors", msgs))
			s.log.Error("HTTP request with errors", fields...)
			return
		}
		s.log.Info("HTTP request", fields...)
	}
}

// fail maps domain errors to a status code and a JSON error body.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, article.ErrNotFound),
		errors.Is(err, article.ErrSessionNotFound),
		errors.Is(err, media.ErrNotFound),
		errors.Is(err, mail.ErrMessageNotFound),
		errors.Is(err, pressrelease.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, article.ErrIncompleteForm),
		errors.Is(err, article.ErrUnknownCategory),
		errors.Is(err, article.ErrInvalidStatus),
		errors.Is(err, mail.ErrMissingRecipient),
		errors.Is(err, mail.ErrEmptyBody),
		errors.Is(err, newsfactory.ErrMissingFields):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, article.ErrSlugTaken), errors.Is(err, article.ErrSlugExhausted):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, newsfactory.ErrNotConfigured):
		status, msg = http.StatusServiceUnavailable, err.Error()
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func trimIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
