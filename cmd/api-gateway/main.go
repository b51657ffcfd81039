package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/inbox-rules-api/api/swagger"
	"github.com/noah-isme/inbox-rules-api/internal/gmail"
	"github.com/noah-isme/inbox-rules-api/internal/handler"
	internalmiddleware "github.com/noah-isme/inbox-rules-api/internal/middleware"
	"github.com/noah-isme/inbox-rules-api/internal/repository"
	"github.com/noah-isme/inbox-rules-api/internal/service"
	"github.com/noah-isme/inbox-rules-api/pkg/cache"
	"github.com/noah-isme/inbox-rules-api/pkg/config"
	"github.com/noah-isme/inbox-rules-api/pkg/database"
	"github.com/noah-isme/inbox-rules-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/inbox-rules-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/inbox-rules-api/pkg/middleware/requestid"
	"github.com/noah-isme/inbox-rules-api/pkg/secrets"
)

// @title Inbox Rules API
// @version 1.0.0
// @description Rule-tree jobs that archive matching Gmail messages.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	metricsSvc := service.NewMetricsService()
	checks := map[string]handler.Pinger{"postgres": db}

	var cacheRepo service.CacheRepository
	if cfg.Jobs.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, job cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, "inbox-rules", logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
			checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Jobs.CacheTTL, logr, cacheRepo != nil)

	jobRepo := repository.NewJobRepository(db, metricsSvc)
	ruleRepo := repository.NewJobRuleRepository(db, metricsSvc)
	logRepo := repository.NewJobLogRepository(db, metricsSvc)
	mailUserRepo := repository.NewMailUserRepository(db, metricsSvc)
	secretRepo := repository.NewSecretRepository(db, metricsSvc)

	box, err := secrets.NewBox(cfg.Secrets.Key)
	if err != nil {
		logr.Fatal("failed to init secret box", zap.Error(err))
	}
	secretSvc := service.NewSecretService(secretRepo, box, logr)
	if cfg.Gmail.ClientSecretFile != "" {
		if err := seedOAuthClient(ctx, secretSvc, cfg.Gmail); err != nil {
			logr.Fatal("failed to store gmail oauth client", zap.Error(err))
		}
	}

	sessions := gmail.NewSessionProvider(secretSvc, gmail.Config{
		OAuthKeyName:  cfg.Gmail.OAuthKeyName,
		AuthTokenName: cfg.Gmail.AuthTokenName,
		SessionTTL:    cfg.Gmail.SessionTTL,
		MaxSessions:   cfg.Gmail.MaxSessions,
	}, func(err error) bool { return errors.Is(err, service.ErrSecretNotFound) }, logr)

	validate := validator.New()
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	jobSvc := service.NewJobService(jobRepo, ruleRepo, cacheSvc, validate, logr, service.JobServiceConfig{CacheTTL: cfg.Jobs.CacheTTL})
	runSvc := service.NewRunService(jobSvc, logRepo, func(ctx context.Context, userID string) (service.MailSession, error) {
		client, err := sessions.Session(ctx, userID)
		if err != nil {
			return nil, err
		}
		return client, nil
	}, metricsSvc, logr)
	logSvc := service.NewLogService(logRepo, validate, logr)
	gmailAuthSvc := service.NewGmailAuthService(sessions, mailUserRepo, validate, logr)

	if cfg.Scheduler.Enabled {
		scheduler := service.NewRunScheduler(mailUserRepo, runSvc, service.RunSchedulerConfig{
			Interval: cfg.Scheduler.Interval,
			Workers:  cfg.Scheduler.Workers,
			Retries:  cfg.Scheduler.Retries,
		}, metricsSvc, logr)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	if cfg.Run.TriggerKey == "" {
		logr.Warn("RUN_TRIGGER_KEY is empty, the run endpoint rejects every request")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Routes{
		Jobs:    handler.NewJobHandler(jobSvc),
		Runs:    handler.NewRunHandler(runSvc),
		Logs:    handler.NewLogHandler(logSvc),
		Gmail:   handler.NewGmailAuthHandler(gmailAuthSvc),
		Metrics: handler.NewMetricsHandler(metricsSvc, checks),
		Auth:    internalmiddleware.JWT(authSvc),
		Trigger: internalmiddleware.TriggerKey(cfg.Run.TriggerKey),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

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

func seedOAuthClient(ctx context.Context, store *service.SecretService, cfg config.GmailConfig) error {
	raw, err := os.ReadFile(cfg.ClientSecretFile)
	if err != nil {
		return fmt.Errorf("read client secret file: %w", err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("client secret file %s is not valid JSON", cfg.ClientSecretFile)
	}
	return store.Put(ctx, "", cfg.OAuthKeyName, json.RawMessage(raw))
}
