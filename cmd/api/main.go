package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trellis/api/internal/app"
	"trellis/api/internal/config"
	"trellis/api/internal/contentdb"
	"trellis/api/internal/email"
	"trellis/api/internal/export"
	"trellis/api/internal/gitrepo"
	"trellis/api/internal/ledger"
	"trellis/api/internal/media"
	"trellis/api/internal/reconcile"
	"trellis/api/internal/search"
	"trellis/api/internal/session"
	"trellis/api/internal/store"
	"trellis/api/internal/upstream"
	"trellis/api/internal/viewcache"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("create repos dir %s: %v", cfg.ReposDir, err)
	}

	dataStore := store.NewPostgresStore(db)
	dataStore.SessionTTL = cfg.DraftTTL
	gitService := gitrepo.New(cfg.ReposDir)

	ledgerClient := ledger.New(upstream.NewClient(cfg.LedgerAPIURL, cfg.UpstreamTimeout))
	contentClient := contentdb.New(upstream.NewClient(cfg.ContentAPIURL, cfg.UpstreamTimeout))
	reconciler := reconcile.New(ledgerClient, contentClient)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if url := strings.TrimSpace(cfg.MeiliURL); url != "" {
		meiliClient = search.NewMeili(url, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		searchService.ReindexAllFromPG(ctx)
	}

	// Redis backs draft sessions and the view cache. Without it, sessions
	// fall back to PostgreSQL and views go uncached.
	var sessions app.SessionStore = dataStore
	var cache app.ViewCache = viewcache.Disabled{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisSessions, err := session.NewRedisStore(cfg.RedisURL, cfg.DraftTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisSessions.Close()
		sessions = redisSessions

		redisCache, err := viewcache.NewStore(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
		log.Printf("Using Redis for draft sessions and the view cache")
	} else {
		log.Printf("Using PostgreSQL for draft sessions; view cache disabled")
		// Redis expires sessions on its own; the Postgres fallback needs a
		// janitor.
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if n, err := dataStore.DeleteExpiredDraftSessions(context.Background()); err != nil {
					log.Printf("session cleanup failed: %v", err)
				} else if n > 0 {
					log.Printf("session cleanup removed %d expired drafts", n)
				}
			}
		}()
	}

	var mediaService *media.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaService, err = media.New(media.Config{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicURL,
		})
		if err != nil {
			log.Fatalf("media storage init failed: %v", err)
		}
		if err := mediaService.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: media bucket check failed: %v", err)
		}
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	exportService := export.NewService(reconciler)

	service := app.New(cfg, reconciler, sessions, dataStore, gitService, cache, searchService, mediaService, emailService, exportService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpServer.Handler(),
		// Write needs headroom for PDF export; everything else is quick.
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		log.Printf("Trellis API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
