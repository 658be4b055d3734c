package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-import-api/internal/handler"
	internalmiddleware "github.com/noah-isme/campus-import-api/internal/middleware"
	"github.com/noah-isme/campus-import-api/internal/repository"
	"github.com/noah-isme/campus-import-api/internal/service"
	"github.com/noah-isme/campus-import-api/pkg/cache"
	"github.com/noah-isme/campus-import-api/pkg/config"
	"github.com/noah-isme/campus-import-api/pkg/database"
	"github.com/noah-isme/campus-import-api/pkg/jobs"
	"github.com/noah-isme/campus-import-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-import-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-import-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-import-api/pkg/storage"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage.BaseDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init object store", "error", err)
	}

	jobRepo := repository.NewImportJobRepository(db)
	recordRepo := repository.NewImportRecordRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)

	rowValidator := service.NewRowValidator()
	dedup := service.NewDedupService()
	allocator := service.NewAllocatorService(sectionRepo, service.AllocatorConfig{
		SectionCapacity:     cfg.Import.SectionCapacity,
		MinSectionOccupancy: cfg.Import.MinSectionOccupancy,
	}, logr)

	lockFactory := service.LockFactory(func(key string) service.ScopeLock {
		return cache.NewLock(redisClient, key, cfg.Import.AllocationLockTTL)
	})

	studentImporter := service.NewStudentImporter(studentRepo, catalogRepo, rowValidator, dedup, allocator, lockFactory, cfg.Import, logr)
	teacherImporter := service.NewTeacherImporter(teacherRepo, catalogRepo, rowValidator, dedup, cfg.Import, logr)

	metrics := service.NewMetricsService()
	importService := service.NewImportService(service.ImportServiceDeps{
		Jobs:     jobRepo,
		Records:  recordRepo,
		Students: studentRepo,
		Teachers: teacherRepo,
		Store:    objectStore,
		Parser:   service.NewParserService(),
		Reporter: service.NewErrorReporter(objectStore, cfg.Storage.ImportBucket),
		Progress: service.NewProgressService(redisClient),
		Events:   service.NewEventPublisher(redisClient, logr),
		Metrics:  metrics,
		Cfg:      cfg.Import,
		Bucket:   cfg.Storage.ImportBucket,
		Logger:   logr,
	}, studentImporter, teacherImporter)

	queue := jobs.NewQueue("bulk-imports", importService.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Import.WorkerConcurrency,
		MaxRetries: cfg.Import.WorkerRetries,
		Logger:     logr,
	})
	importService.SetQueue(queue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	if err := importService.RecoverPendingJobs(ctx, 0); err != nil {
		logr.Sugar().Warnw("failed to recover pending jobs", "error", err)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.RequireIdentity())
	handler.NewImportHandler(importService, cfg.Import.RollbackWindow).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
		os.Exit(1)
	}
}
