package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"halwakitchen/internal/api"
	"halwakitchen/internal/batch"
	"halwakitchen/internal/catalog"
	"halwakitchen/internal/config"
	"halwakitchen/internal/database"
	"halwakitchen/internal/live"
	"halwakitchen/internal/monitoring"
	"halwakitchen/internal/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		cfg = config.Default()
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *metricsPort != 0 {
		cfg.MetricsPort = *metricsPort
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := database.InitDB(cfg.Database.Dialect, cfg.Database.DSN); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.CloseDB()

	db := database.GetDB()
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	metrics := monitoring.NewCollector()
	hub := live.NewHub(logger)

	catalogSvc := catalog.NewService(db, logger)
	batchSvc := batch.NewService(db, logger, cfg.Stopwatch.Strict)
	validationSvc := validation.NewService(db, logger)

	server := api.NewServer(catalogSvc, batchSvc, validationSvc, metrics, hub, cfg.Auth.JWTSecret)

	go startMetricsServer(logger, metrics, cfg.MetricsPort)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Router(),
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting API server", zap.Int("port", cfg.Port))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("API server error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

func startMetricsServer(logger *zap.Logger, metrics *monitoring.Collector, port int) {
	metricsRouter := gin.Default()
	metricsRouter.GET("/metrics", gin.WrapH(metrics.Handler()))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: metricsRouter,
	}

	logger.Info("starting metrics server", zap.Int("port", port))
	if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("metrics server error", zap.Error(err))
	}
}
