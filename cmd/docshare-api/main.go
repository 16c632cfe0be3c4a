package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/docshare-api/api/swagger"
	"github.com/noah-isme/docshare-api/internal/handler"
	"github.com/noah-isme/docshare-api/internal/middleware"
	"github.com/noah-isme/docshare-api/internal/repository"
	"github.com/noah-isme/docshare-api/internal/service"
	"github.com/noah-isme/docshare-api/pkg/cache"
	"github.com/noah-isme/docshare-api/pkg/config"
	"github.com/noah-isme/docshare-api/pkg/database"
	"github.com/noah-isme/docshare-api/pkg/jobs"
	"github.com/noah-isme/docshare-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/docshare-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/docshare-api/pkg/middleware/requestid"
	"github.com/noah-isme/docshare-api/pkg/schedule"
	"github.com/noah-isme/docshare-api/pkg/sharecode"
	"github.com/noah-isme/docshare-api/pkg/storage"
)

// @title DocShare API
// @version 1.0.0
// @description Document upload and link sharing service
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.ApplyMigrations(ctx, db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	metricsSvc := service.NewMetricsService()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		redisRepo := repository.NewCacheRepository(redisClient, logr)
		defer redisRepo.Close() //nolint:errcheck
		cacheRepo = redisRepo
	} else {
		cacheRepo = repository.NewLRUCacheRepository(cfg.Cache.LRUSize, cfg.Cache.TTL)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	signer := storage.NewSignedURLSigner(cfg.Documents.SigningSecret, cfg.Documents.PreviewURLTTL)
	filesBase := cfg.PublicAPIURL + cfg.APIPrefix + "/files"
	store, err := storage.New(ctx, cfg.Storage, signer, filesBase)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	validate := validator.New()
	if err := sharecode.Register(validate); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	shareRepo := repository.NewShareRepository(db)

	counters := jobs.NewQueue("counters", service.CounterJobHandler(documentRepo, shareRepo), jobs.QueueConfig{
		Workers:    cfg.Workers.CounterWorkers,
		MaxRetries: cfg.Workers.CounterRetries,
		Logger:     logr,
	})
	counters.Start(ctx)
	defer counters.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		AllowRegistration: cfg.Auth.AllowRegistration,
	})
	documentSvc := service.NewDocumentService(documentRepo, store, counters, userRepo, metricsSvc, logr, service.DocumentServiceConfig{
		MaxFileSize: cfg.Documents.MaxFileSizeBytes,
		PreviewTTL:  cfg.Documents.PreviewURLTTL,
	})
	shareSvc := service.NewShareService(shareRepo, documentRepo, store, cacheSvc, counters, userRepo, validate, metricsSvc, logr, service.ShareServiceConfig{
		PublicOrigin:     cfg.PublicOrigin,
		PreviewTTL:       cfg.Documents.PreviewURLTTL,
		CheckCacheTTL:    cfg.Cache.TTL,
		ExpiredRetention: cfg.Shares.ExpiredRetention,
	})
	documentSvc.SetShareCleaner(shareSvc)
	exportSvc := service.NewExportService(shareSvc, logr)

	scheduler := schedule.NewCronScheduler(logr)
	if cfg.Shares.SweepSchedule != "" {
		if err := scheduler.AddJob(service.NewShareSweepJob(shareSvc), cfg.Shares.SweepSchedule); err != nil {
			return fmt.Errorf("schedule share sweeper: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/metrics",
		cfg.APIPrefix + "/files/",
		cfg.APIPrefix + "/documents/download/",
	})))

	routes := handler.Routes{
		APIPrefix:    cfg.APIPrefix,
		Auth:         handler.NewAuthHandler(authSvc),
		Documents:    handler.NewDocumentHandler(documentSvc),
		Shares:       handler.NewShareHandler(shareSvc, exportSvc),
		Metrics:      handler.NewMetricsHandler(metricsSvc, db),
		RequireAuth:  middleware.JWT(authSvc),
		RequireAdmin: middleware.RequireAdmin(),
		ShareLimit: middleware.ShareRateLimit(middleware.RateLimitConfig{
			Window:  cfg.Shares.RateLimitWindow,
			Burst:   cfg.Shares.RateLimitBurst,
			Metrics: metricsSvc,
			Logger:  logr,
		}),
	}
	if local, ok := store.(*storage.LocalStorage); ok {
		routes.Files = handler.NewFileHandler(local)
	}
	handler.RegisterRoutes(r, routes)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
