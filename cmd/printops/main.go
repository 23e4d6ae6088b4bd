package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/printops/internal/config"
	"github.com/bitfantasy/printops/internal/middleware"
	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/handler"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/production/service"
	"github.com/bitfantasy/printops/internal/production/sse"
	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/bitfantasy/printops/internal/shared/notify"
	"github.com/bitfantasy/printops/internal/shared/storage"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting printops production service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("storage", cfg.Storage.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := initStore(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to init storage", zap.Error(err))
	}

	hub := sse.NewHub(zapLogger.Named("sse"))
	deps := service.Deps{
		Notifier: notify.NewDispatcher(cfg.Notify.Timeout, initMailer(cfg.Notify)),
		Throttle: initThrottle(ctx, cfg.Redis, zapLogger),
	}

	// 事件同时推送到控制台和 Kafka
	fanout := events.Fanout{hub}
	var kafkaPub *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, zapLogger.Named("kafka"))
		defer kafkaPub.Close()
		fanout = append(fanout, kafkaPub)
	}
	deps.Publisher = fanout

	archive, err := storage.NewObjectStore(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL)
	if err != nil {
		zapLogger.Warn("MinIO unavailable, reports will not be archived", zap.Error(err))
	} else if archive != nil {
		if err := archive.EnsureBucket(ctx); err != nil {
			zapLogger.Warn("MinIO bucket check failed, reports will not be archived", zap.Error(err))
		} else {
			deps.Archive = archive
		}
	}

	services := service.NewServices(store, deps, cfg, zapLogger)
	handlers := handler.NewHandlers(services, hub)

	// 订单同步消费
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.OrdersTopic != "" {
		consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic, cfg.Kafka.GroupID, zapLogger.Named("kafka"))
		defer consumer.Close()
		go consumer.Run(ctx, services.Ingest.HandleOrderMessage)
		zapLogger.Info("Order consumer started", zap.String("topic", cfg.Kafka.OrdersTopic))
	}

	go services.Alerts.Run(ctx, cfg.Production.AlertInterval)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/production/events"})))

	registerRoutes(router, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE 长连接
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "Not found"})
	})

	v1 := r.Group("/api/v1", middleware.JWTAuth(cfg.JWT.Secret))
	h.RegisterRoutes(v1)
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

// initStore memory 驱动只用于本地演示，重启后数据丢失
func initStore(cfg *config.Config, zapLogger *zap.Logger) (repository.Store, error) {
	if cfg.Storage.Driver == "memory" {
		zapLogger.Warn("Using in-memory storage, data is not persisted")
		return repository.NewMemoryStore(), nil
	}

	db, err := initDatabase(cfg.Database, cfg.Log.Level == "debug")
	if err != nil {
		return nil, err
	}
	if err := entity.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return repository.NewGormStore(db), nil
}

func initDatabase(cfg config.DatabaseConfig, verbose bool) (*gorm.DB, error) {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

// initThrottle 告警冷却优先放在 Redis，多实例共享；不可用时退回进程内
func initThrottle(ctx context.Context, cfg config.RedisConfig, zapLogger *zap.Logger) service.Throttle {
	if cfg.Host == "" {
		return service.NewMemoryThrottle()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zapLogger.Warn("Redis unavailable, alert cooldown is per-process", zap.Error(err))
		rdb.Close()
		return service.NewMemoryThrottle()
	}
	return service.NewRedisThrottle(rdb)
}

func initMailer(cfg config.NotifyConfig) notify.Mailer {
	if cfg.SMTPHost == "" {
		return nil
	}
	return notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
}
