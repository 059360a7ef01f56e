package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kjtimes/internal/app"
	"kjtimes/internal/article"
	"kjtimes/internal/auth"
	"kjtimes/internal/cache"
	"kjtimes/internal/cms"
	"kjtimes/internal/logger"
	"kjtimes/internal/mail"
	"kjtimes/internal/media"
	"kjtimes/internal/metrics"
	"kjtimes/internal/newsfactory"
	"kjtimes/internal/pressrelease"
)

func main() {
	configPath := flag.String("config", os.Getenv("KJTIMES_CONFIG"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.Auth.JWTSecret == "" {
		lg.Error("JWT_SECRET is required for the CMS")
		os.Exit(1)
	}

	db, err := app.NewDB(cfg)
	if err != nil {
		lg.Error("open db", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	if err := app.PingDB(db, 5*time.Second); err != nil {
		lg.Error("connect db", logger.Error(err))
		os.Exit(1)
	}

	pageCache, err := cache.New(cache.Config{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		lg.Error("connect redis", logger.Error(err))
		os.Exit(1)
	}
	defer pageCache.Close()

	m := metrics.New()

	articles := article.NewStore(db)
	editor := article.NewEditor(articles)
	sessions := article.NewSessionManager(editor, article.AutoSaveOptions{
		Interval: cfg.AutoSaveInterval,
		Logger:   lg.With(logger.String("component", "autosave")),
		OnResult: m.ObserveSave,
	}, 0)
	sessions.OnCountChange(m.SetDraftSessions)
	defer sessions.Shutdown()

	deps := cms.Deps{
		Articles:      articles,
		Editor:        editor,
		Slugs:         editor.Slugs(),
		Sessions:      sessions,
		Auth:          auth.NewStore(db),
		JWT:           auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Importer:      newsfactory.NewImporter(articles),
		Press:         pressrelease.NewStore(db),
		ReceiveSecret: cfg.NewsFactory.ReceiveSecret,
		SecureCookies: strings.HasPrefix(cfg.SiteURL, "https://"),
		Metrics:       m,
		Log:           lg.With(logger.String("component", "cms")),
	}

	if storageConfigured(cfg.Storage) {
		objects, err := media.NewS3(context.Background(), media.S3Config{
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			Endpoint:      cfg.Storage.Endpoint,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			UsePathStyle:  cfg.Storage.UsePathStyle,
		})
		if err != nil {
			lg.Error("init media storage", logger.Error(err))
			os.Exit(1)
		}
		deps.Media = media.NewLibrary(objects, media.NewStore(db))
	} else {
		lg.Warn("media storage not configured; uploads disabled")
	}

	if cfg.Mail.Password != "" {
		mc := mail.Config{
			IMAPHost: cfg.Mail.IMAPHost,
			IMAPPort: cfg.Mail.IMAPPort,
			SMTPHost: cfg.Mail.SMTPHost,
			SMTPPort: cfg.Mail.SMTPPort,
			User:     cfg.Mail.User,
			Password: cfg.Mail.Password,
			FromName: cfg.SiteName,
		}
		deps.Mailbox = mail.NewReader(mc)
		deps.Mail = mail.NewSender(mc)
	}

	// The proxy answers 503 on its own while the factory is unconfigured.
	deps.Factory = newsfactory.NewClient(newsfactory.Config{URL: cfg.NewsFactory.URL, APIKey: cfg.NewsFactory.APIKey})
	if !deps.Factory.Configured() {
		lg.Warn("news factory not configured")
	}

	server, err := app.NewServer(cfg, app.Deps{
		Articles: articles,
		Cache:    pageCache,
		Metrics:  m,
		Log:      lg.With(logger.String("component", "site")),
		API:      cms.New(deps).Handler(),
		DB:       db,
	})
	if err != nil {
		lg.Error("init server", logger.Error(err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		lg.Info("kjtimes listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Error("listen", logger.Error(err))
			stop()
		}
	}()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		lg.Warn("graceful shutdown failed", logger.Error(err))
	}
}

func storageConfigured(s app.StorageConfig) bool {
	return s.Bucket != "" && (s.Endpoint != "" || s.AccessKey != "")
}
