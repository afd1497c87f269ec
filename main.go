package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/yashrajoria/docstore-service/common/logger"
	"github.com/yashrajoria/docstore-service/common/middleware"
	"github.com/yashrajoria/docstore-service/config"
	"github.com/yashrajoria/docstore-service/database"
	"github.com/yashrajoria/docstore-service/events"
	"github.com/yashrajoria/docstore-service/repository"
	"github.com/yashrajoria/docstore-service/routes"
	"github.com/yashrajoria/docstore-service/store"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awspkg "github.com/yashrajoria/docstore-service/pkg/aws"
)

const serviceName = "docstore-service"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if err := logger.Initialize(cfg.AppEnv); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	var awsCfg sdkaws.Config
	if needsAWS(cfg) {
		awsCfg, err = awspkg.LoadAWSConfig(ctx, awspkg.Options{Region: cfg.AWSRegion, Endpoint: cfg.AWSEndpoint})
		if err != nil {
			logger.Log.Fatal("Failed to load AWS config", zap.Error(err))
		}
	}

	if cfg.CloudWatchEnabled {
		cwLogs, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			logger.Warn(ctx, "CloudWatch Logs init failed", zap.Error(err))
		} else if err := logger.InitializeWithWriter(cfg.AppEnv, cwLogs); err != nil {
			logger.Warn(ctx, "CloudWatch Logs writer rejected", zap.Error(err))
		}
	}
	defer func() { _ = logger.Log.Sync() }()

	if cfg.UseSecrets {
		if err := cfg.ApplySecrets(ctx, awspkg.NewSecretsClient(awsCfg)); err != nil {
			logger.Warn(ctx, "Falling back to AUTH_PASSWORD from the environment", zap.Error(err))
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}

	registry, err := database.OpenBackends(ctx, cfg, awsCfg)
	if err != nil {
		logger.Log.Fatal("Failed to open backends", zap.Error(err))
	}

	var notifier events.Notifier = events.Noop{}
	var snsNotifier *events.SNSNotifier
	if cfg.EventsTopicARN != "" {
		snsNotifier = events.NewSNSNotifier(awspkg.NewSNSClient(awsCfg), cfg.EventsTopicARN)
		notifier = snsNotifier
	}

	provider := repository.NewProvider(registry, notifier, cfg.CartUpdateAttempts)
	limiter := middleware.PerMinute(cfg.RateLimitPerMinute)
	defer limiter.Stop()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.NewRouter(provider, registry, routes.Options{
		ServiceName:    serviceName,
		AuthUser:       cfg.AuthUser,
		AuthSecret:     cfg.AuthPassword,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    limiter,
		Metrics:        awspkg.NewMetricsClient(awsCfg, "DocStore", cfg.CloudWatchEnabled),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Document store service is running", zap.String("port", cfg.Port), zap.Strings("backends", cfg.Backends))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info(ctx, "Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Shutdown error", err)
	}
	if snsNotifier != nil {
		snsNotifier.Wait()
	}
	if err := registry.Close(); err != nil {
		logger.Error(ctx, "Failed to close backends", err)
	}
	logger.Info(ctx, "Server shutdown complete.")
}

// needsAWS reports whether any enabled feature talks to AWS.
func needsAWS(cfg config.Config) bool {
	return cfg.Enabled(store.BackendDynamo) || cfg.UseSecrets || cfg.EventsTopicARN != "" || cfg.CloudWatchEnabled
}
