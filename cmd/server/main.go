package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"github.com/bitfantasy/nimo-codes/internal/codes/handler"
	"github.com/bitfantasy/nimo-codes/internal/codes/repository"
	"github.com/bitfantasy/nimo-codes/internal/codes/service"
	"github.com/bitfantasy/nimo-codes/internal/config"
	"github.com/bitfantasy/nimo-codes/internal/middleware"
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

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-codes service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.Int("number_digits", cfg.Code.NumberDigits),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.ProductType{},
		&entity.ModelClassification{},
		&entity.CodeClassification{},
		&entity.CodeUsage{},
		&entity.CodePreAllocationLog{},
		&entity.OperationLog{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	// 非删除编码的完整编码全局唯一。应用层的查重挡不住并发窗口，
	// 唯一性必须由存储层兜底。
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS uidx_code_usages_active_model ON code_usages(model) WHERE is_deleted = false")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_code_usages_class_alloc ON code_usages(code_classification_id, is_allocated)")

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化依赖
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, db, cfg)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
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

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
		// 唯一索引冲突要能翻译成 gorm.ErrDuplicatedKey
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
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

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	api := r.Group("/api/v1", middleware.JWTAuth(cfg.JWT.Secret))

	// 产品大类
	api.GET("/product-types", h.ProductType.List)
	api.POST("/product-types", middleware.RequireRole("codes_admin"), h.ProductType.Create)
	api.PUT("/product-types/:id", middleware.RequireRole("codes_admin"), h.ProductType.Update)
	api.DELETE("/product-types/:id", middleware.RequireRole("codes_admin"), h.ProductType.Delete)

	// 机型分类
	api.GET("/model-classifications", h.Classification.ListModels)
	api.GET("/model-classifications/:id", h.Classification.GetModel)
	api.POST("/model-classifications", middleware.RequireRole("codes_admin"), h.Classification.CreateModel)
	api.PUT("/model-classifications/:id", middleware.RequireRole("codes_admin"), h.Classification.UpdateModel)
	api.DELETE("/model-classifications/:id", middleware.RequireRole("codes_admin"), h.Classification.DeleteModel)

	// 代码分类
	api.GET("/model-classifications/:id/code-classifications", h.Classification.ListCodeClassifications)
	api.POST("/model-classifications/:id/code-classifications", middleware.RequireRole("codes_admin"), h.Classification.CreateCodeClassification)
	api.PUT("/code-classifications/:id", middleware.RequireRole("codes_admin"), h.Classification.UpdateCodeClassification)
	api.DELETE("/code-classifications/:id", middleware.RequireRole("codes_admin"), h.Classification.DeleteCodeClassification)
	api.POST("/code-classifications/:id/preallocate", middleware.RequireRole("codes_admin"), h.Classification.PreAllocate)
	api.GET("/code-classifications/:id/preallocation-logs", h.Classification.ListPreAllocationLogs)

	// 编码
	api.GET("/codes", h.Code.List)
	api.GET("/codes/stats", h.Code.Stats)
	api.GET("/codes/availability", h.Code.CheckAvailability)
	api.GET("/codes/export", h.Code.Export)
	api.POST("/codes/batch-delete", h.Code.BatchSoftDelete)
	api.POST("/codes/batch-restore", h.Code.BatchRestore)
	api.GET("/codes/:id", h.Code.Get)
	api.POST("/codes/:id/allocate", h.Code.Allocate)
	api.PUT("/codes/:id", h.Code.Update)
	api.DELETE("/codes/:id", h.Code.SoftDelete)
	api.POST("/codes/:id/restore", h.Code.Restore)
	api.POST("/model-classifications/:id/codes", h.Code.CreateManual)

	// 操作日志
	api.GET("/operation-logs", h.OperationLog.List)
}
