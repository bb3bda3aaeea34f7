package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"taskapi/internal/auth"
	"taskapi/internal/config"
	"taskapi/internal/docstore"
	"taskapi/internal/docstore/s3store"
	"taskapi/internal/docstore/sqlite"
	apphttp "taskapi/internal/http"
	"taskapi/internal/observability"
	"taskapi/internal/repository/document"
	"taskapi/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using %s", cfg.Log.Level, logger.GetLevel())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup document store: %v", err)
	}
	defer store.Close()
	if metrics != nil {
		store = observability.InstrumentGateway(store, metrics, cfg.Store.Backend)
	}

	tokens, err := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)
	if err != nil {
		logger.Fatalf("setup token codec: %v", err)
	}

	userService := service.NewUserService(document.NewUserRepository(store), tokens, logger)
	taskService := service.NewTaskService(document.NewTaskRepository(store, logger))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handlerCfg := apphttp.Config{
		AppName:       cfg.App.Name,
		AllowedOrigin: cfg.CORS.AllowedOrigin,
		Logger:        logger,
		Metrics:       metrics,
	}
	if registry != nil {
		handlerCfg.Gatherer = registry
	}
	handler, err := apphttp.NewHandler(userService, taskService, tokens, handlerCfg)
	if err != nil {
		logger.Fatalf("setup http handler: %v", err)
	}
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

	logger.Info("bye")
}

func buildStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (docstore.Gateway, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		logger.Infof("using sqlite document store at %s", cfg.Store.Path)
		return sqlite.New(ctx, cfg.Store.Path)
	case config.BackendS3:
		loadOpts := []func(*awscfg.LoadOptions) error{
			awscfg.WithRegion(cfg.Store.Region),
		}
		if cfg.AWS.Profile != "" {
			loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
		}

		awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Store.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Store.Endpoint)
				o.UsePathStyle = true
			}
		})
		logger.Infof("using s3 document store in bucket %s (region %s)", cfg.Store.Bucket, cfg.Store.Region)
		return s3store.New(client, cfg.Store.Bucket, cfg.Store.Prefix)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
