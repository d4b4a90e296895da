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
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/openprocure/procure-api/api/swagger"
	"github.com/openprocure/procure-api/internal/handler"
	"github.com/openprocure/procure-api/internal/middleware"
	"github.com/openprocure/procure-api/internal/models"
	"github.com/openprocure/procure-api/internal/repository"
	"github.com/openprocure/procure-api/internal/service"
	"github.com/openprocure/procure-api/pkg/cache"
	"github.com/openprocure/procure-api/pkg/config"
	"github.com/openprocure/procure-api/pkg/database"
	"github.com/openprocure/procure-api/pkg/jobs"
	"github.com/openprocure/procure-api/pkg/logger"
	corsmiddleware "github.com/openprocure/procure-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openprocure/procure-api/pkg/middleware/requestid"
	"github.com/openprocure/procure-api/pkg/storage"
)

// @title OpenProcure API
// @version 1.0.0
// @description Procurement request lifecycle, compliance packages, and audit findings
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	findingRepo := repository.NewFindingRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)
	exportRepo := repository.NewExportRepository(db)

	authSvc := service.NewAuthService(userRepo, auditLogRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "procure-api",
	})

	defaultPolicy := models.OrgPolicy{
		MicroPurchaseLimit: cfg.Policy.MicroPurchaseLimit,
		SplitWindow:        cfg.Policy.SplitWindow,
		SplitThreshold:     cfg.Policy.SplitThreshold,
	}

	auditSvc := service.NewAuditService(
		packageRepo, findingRepo, attachmentRepo, requestRepo, approvalRepo, purchaseRepo, policyRepo,
		auditLogRepo, logr,
		service.WithPackageCache(redisClient, cfg.Audit.CacheTTL),
		service.WithAuditDefaultPolicy(defaultPolicy),
	)

	packageQueue := jobs.NewQueue("audit-packages", func(ctx context.Context, job jobs.Job) error {
		requestID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		_, err := auditSvc.BuildPackage(ctx, requestID)
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Audit.WorkerConcurrency,
		MaxRetries: cfg.Audit.WorkerRetries,
		Logger:     logr,
	})

	requestOpts := []service.RequestOption{
		service.WithDefaultPolicy(defaultPolicy),
		service.WithNotifier(service.NewLoggingNotifier(logr)),
	}
	if cfg.Audit.Enabled {
		requestOpts = append(requestOpts, service.WithPackageTrigger(func(requestID string) {
			job := jobs.Job{ID: uuid.NewString(), Type: "package.build", Payload: requestID, Enqueued: time.Now()}
			if err := packageQueue.Enqueue(job); err != nil {
				logr.Sugar().Warnw("failed to enqueue package build", "request_id", requestID, "error", err)
			}
		}))
	}
	requestSvc := service.NewRequestService(requestRepo, approvalRepo, policyRepo, auditLogRepo, validate, logr, requestOpts...)
	purchaseSvc := service.NewPurchaseService(purchaseRepo, requestRepo, auditLogRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, auditLogRepo, validate, logr)
	metricsSvc := service.NewMetricsService()

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(exportRepo, packageRepo, findingRepo, requestRepo, auditLogRepo, exportStorage, signer,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, LinkTTL: cfg.Exports.SignedURLTTL}, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	purchaseHandler := handler.NewPurchaseHandler(purchaseSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	// The signed token is the credential, so downloads skip the JWT gate.
	if cfg.Exports.Enabled {
		api.GET("/exports/download/:token", exportHandler.Download)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	authed.POST("/requests", requestHandler.Create)
	authed.GET("/requests", requestHandler.List)
	authed.GET("/requests/:id", requestHandler.Get)
	authed.PUT("/requests/:id", requestHandler.Update)
	authed.POST("/requests/:id/transition", requestHandler.Transition)
	authed.GET("/requests/:id/next-actions", requestHandler.NextActions)
	authed.GET("/requests/:id/approvals", requestHandler.Approvals)

	authed.POST("/requests/:id/purchase", purchaseHandler.Record)
	authed.GET("/requests/:id/purchase", purchaseHandler.Get)
	authed.POST("/requests/:id/reconcile", purchaseHandler.Reconcile)

	authed.GET("/requests/:id/package", auditHandler.GetPackage)
	authed.POST("/requests/:id/package/rebuild", auditHandler.RebuildPackage)
	authed.GET("/requests/:id/package/validate", auditHandler.ValidatePackage)
	authed.POST("/requests/:id/attachments", auditHandler.RegisterAttachment)
	authed.GET("/requests/:id/audit-status", auditHandler.AuditStatus)
	authed.GET("/audit/packages", auditHandler.ListPackages)
	authed.GET("/audit/findings", auditHandler.ListFindings)
	authed.POST("/audit/findings/:id/cardholder-response", auditHandler.CardholderResponse)
	authed.POST("/audit/findings/:id/auditor-response", auditHandler.AuditorResponse)

	if cfg.Exports.Enabled {
		authed.POST("/requests/:id/export", exportHandler.Export)
		authed.GET("/exports/:id", exportHandler.GetJob)
	}

	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)

	admin := authed.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/users", userHandler.Create)
	admin.PUT("/users/:id", userHandler.Update)
	admin.DELETE("/users/:id", userHandler.Deactivate)
	admin.GET("/admin/metrics", middleware.Audit(auditLogRepo, "METRICS_VIEW", "metrics"), metricsHandler.Snapshot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Audit.Enabled {
		packageQueue.Start(ctx)
		defer packageQueue.Stop()
	}

	if cfg.Exports.Enabled && cfg.Exports.CleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Exports.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					removed, err := exportSvc.Cleanup(0)
					if err != nil {
						logr.Sugar().Warnw("export cleanup failed", "error", err)
					} else if len(removed) > 0 {
						logr.Sugar().Infow("export cleanup", "removed", len(removed))
					}
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
