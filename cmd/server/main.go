package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"greennets/backend/internal/analytics"
	"greennets/backend/internal/cache"
	"greennets/backend/internal/config"
	"greennets/backend/internal/httpapi"
	"greennets/backend/internal/invoice"
	"greennets/backend/internal/logger"
	"greennets/backend/internal/media"
	"greennets/backend/internal/service"
	"greennets/backend/internal/store"
	"greennets/backend/internal/store/memory"
	pgstore "greennets/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment, ServiceName: "greennets-backend"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	loc, _ := cfg.Location()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal("apply schema", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	var cacheStore cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using in-process cache", zap.Error(err))
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: in-process")
	}

	var blobs media.BlobStore = media.NewMemoryStore("/media")
	if cfg.GCSBucket != "" {
		gcs, err := media.NewGCSStore(ctx, cfg.GCSBucket)
		if err != nil {
			log.Fatal("gcs unavailable and GCS_BUCKET is set", zap.Error(err))
		}
		blobs = gcs
		closers = append(closers, gcs.Close)
		log.Info("images: gcs", zap.String("bucket", cfg.GCSBucket))
	} else {
		log.Warn("GCS_BUCKET not set; product images are kept in memory")
	}

	var renderer invoice.Renderer = invoice.HTMLRenderer{}
	if cfg.PDFRendererURL != "" {
		renderer = invoice.NewHTTPRenderer(cfg.PDFRendererURL, 20*time.Second)
		log.Info("invoices: pdf", zap.String("renderer", cfg.PDFRendererURL))
	}

	engine := analytics.NewEngine(repo, cacheStore, time.Duration(cfg.AnalyticsCacheTTLSeconds)*time.Second, loc, log.Named("analytics"))
	svc := service.New(repo, engine, blobs, renderer, service.Options{
		Shop: invoice.Shop{
			Name:    cfg.ShopName,
			Address: cfg.ShopAddress,
			Phone:   cfg.ShopPhone,
			TaxID:   cfg.ShopTaxID,
		},
		Location:          loc,
		CommitRetries:     cfg.SaleCommitRetries,
		LowStockThreshold: cfg.LowStockThreshold,
	}, log.Named("service"))
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log.Named("httpapi"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("greennets backend listening", zap.String("addr", cfg.Address()), zap.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("STORE_TIMEZONE %q: %w", cfg.StoreTimezone, err)
	}
	return nil
}
