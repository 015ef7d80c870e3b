package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"driveguard/internal/archive"
	"driveguard/internal/config"
	"driveguard/internal/detect"
	apphttp "driveguard/internal/http"
	"driveguard/internal/repository/sqlite"
	"driveguard/internal/service"
	"driveguard/internal/storage"
	"driveguard/internal/token"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}
	if strings.TrimSpace(cfg.Database.Path) == "" {
		logger.Fatalf("database path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	reportRepo := sqlite.NewReportRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := reportRepo.Init(ctx); err != nil {
		logger.Fatalf("init report repository: %v", err)
	}

	tokens, err := token.NewService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	if err != nil {
		logger.Fatalf("setup token service: %v", err)
	}

	authService := service.NewAuthService(userRepo, tokens)
	reportService := service.NewReportService(reportRepo)

	var detector *detect.Client
	if cfg.Detect.PredictURL != "" {
		detector = detect.NewClient(cfg.Detect.PredictURL, time.Duration(cfg.Detect.TimeoutSeconds)*time.Second)
	} else {
		logger.Warn("detect predict url not set, /api/detect is unavailable")
	}

	archiver, store := buildArchiver(ctx, cfg, logger, reportService)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		authService,
		reportService,
		tokens,
		detector,
		archiver,
		store,
		cfg.Storage.Bucket,
		cfg.Storage.KeyPrefix,
		cfg.Detect.MediaDir,
		logger,
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if archiver != nil {
		archiver.Shutdown()
	}

	logger.Info("bye")
}

// buildArchiver wires the S3 archive manager when a bucket is configured and
// returns the storage service alongside it so the HTTP layer can presign and
// list archived media. The server runs fine without either.
func buildArchiver(ctx context.Context, cfg config.Config, logger *logrus.Logger, reports service.ReportService) (archive.Manager, storage.Service) {
	if cfg.Storage.Bucket == "" {
		logger.Info("storage bucket not set, media archiving disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		logger.Fatalf("load aws config: %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)

	store := storage.NewS3Service(client)
	manager := archive.NewManager(archive.Config{
		Bucket:        cfg.Storage.Bucket,
		KeyPrefix:     cfg.Storage.KeyPrefix,
		MaxConcurrent: 3,
		Logger:        logger,
	}, reports, store)

	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start archive manager: %v", err)
	}
	if err := manager.Resume(ctx); err != nil {
		logger.Warnf("resume archives: %v", err)
	}
	return manager, store
}
