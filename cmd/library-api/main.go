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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-library-api/api/swagger"
	"github.com/noah-isme/sma-library-api/internal/handler"
	"github.com/noah-isme/sma-library-api/internal/middleware"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/internal/repository"
	"github.com/noah-isme/sma-library-api/internal/service"
	"github.com/noah-isme/sma-library-api/pkg/cache"
	"github.com/noah-isme/sma-library-api/pkg/config"
	"github.com/noah-isme/sma-library-api/pkg/database"
	"github.com/noah-isme/sma-library-api/pkg/jobs"
	"github.com/noah-isme/sma-library-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-library-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-library-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-library-api/pkg/storage"
)

// @title SMA Library API
// @version 1.0.0
// @description School library loans, reviews, statistics and reports
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Sugar().Fatalw("database migration failed", "error", err)
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	var cacheRepoImpl *repository.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, statistics cache disabled", "error", err)
		} else {
			cacheRepoImpl = repository.NewCacheRepository(client, logr)
			cacheRepo = cacheRepoImpl
			defer cacheRepoImpl.Close() //nolint:errcheck
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.StatsTTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	bookRepo := repository.NewBookRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	reportRepo := repository.NewReportRepository(db)

	authSvc := service.NewAuthService(auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		InstitutionDomain: cfg.Library.InstitutionDomain,
		AdminPasswordHash: cfg.Library.AdminPasswordHash,
	})
	bookSvc := service.NewBookService(bookRepo, cacheSvc, auditRepo, validate, logr)
	ledgerSvc := service.NewLedgerService(ledgerRepo, loanRepo, cacheSvc, metricsSvc, validate, logr, cfg.Library.MaxLoanDays)
	reviewSvc := service.NewReviewService(ledgerRepo, cacheSvc, metricsSvc, logr)
	catalogSvc := service.NewCatalogService(bookRepo, reviewRepo, statsRepo, cacheSvc, metricsSvc, logr, service.CatalogServiceConfig{
		CollationLocale: cfg.Library.CollationLocale,
		StatsLimit:      cfg.Library.StatsLimit,
		StatsTTL:        cfg.Cache.StatsTTL,
	})

	var reportHandler *handler.ReportHandler
	if cfg.Reports.Enabled {
		reportSvc, queue, err := buildReports(ctx, cfg, loanRepo, bookRepo, reportRepo, metricsSvc, logr)
		if err != nil {
			logr.Sugar().Fatalw("report pipeline init failed", "error", err)
		}
		queue.Start(ctx)
		defer queue.Stop()
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
		reportHandler = handler.NewReportHandler(reportSvc)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if cacheRepoImpl != nil {
		checks["cache"] = cacheRepoImpl.Ping
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		cfg:       cfg,
		logger:    logr,
		validator: authSvc,
		auditRepo: auditRepo,
		auth:      handler.NewAuthHandler(authSvc),
		catalog:   handler.NewCatalogHandler(catalogSvc),
		loans:     handler.NewLoanHandler(ledgerSvc),
		reviews:   handler.NewReviewHandler(reviewSvc),
		books:     handler.NewBookHandler(bookSvc),
		reports:   reportHandler,
		audit:     handler.NewAuditHandler(auditRepo),
		metrics:   metricsHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildReports(ctx context.Context, cfg *config.Config, loans *repository.LoanRepository, books *repository.BookRepository, reports *repository.ReportRepository, metricsSvc *service.MetricsService, logr *zap.Logger) (*service.ReportService, *jobs.Queue[models.ReportType], error) {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exportSvc := service.NewExportService(loans, books, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr)

	worker := service.NewReportWorker(reports, exportSvc, metricsSvc, cfg.Reports.WorkerRetries, logr)
	queue := jobs.NewQueue[models.ReportType]("reports", worker.Handle, jobs.Config[models.ReportType]{
		Workers:    cfg.Reports.WorkerConcurrency,
		BufferSize: 64,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})

	reportSvc := service.NewReportService(reports, queue, exportSvc, metricsSvc, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})
	return reportSvc, queue, nil
}
