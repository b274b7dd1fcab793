package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/nimo-track/internal/config"
	"github.com/bitfantasy/nimo-track/internal/middleware"
	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/handler"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"github.com/bitfantasy/nimo-track/internal/track/service"
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

	zapLogger.Info("Starting nimo-track service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.Account{},
		&entity.Order{},
		&entity.OrderItem{},
		&entity.StatusEvent{},
		&entity.AuditLog{},
		&entity.StageThreshold{},
		&entity.SystemSetting{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	seedDefaults(db, zapLogger)

	// 初始化Redis（阈值与季节配置缓存）
	rdb := initRedis(cfg.Redis)

	// 依赖装配
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, db, rdb, cfg)
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

	// 注册路由
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

// seedDefaults 写入各阶段默认阈值与季节窗口，已存在的配置不覆盖
func seedDefaults(db *gorm.DB, zapLogger *zap.Logger) {
	for _, stage := range entity.Stages {
		d := entity.DefaultThresholds[stage]
		err := db.Exec(`
			INSERT INTO track_stage_thresholds (id, stage, warning_days, critical_days, description, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, '', 'system', NOW(), NOW())
			ON CONFLICT (stage) DO NOTHING`,
			repository.NewID(), stage, d.WarningDays, d.CriticalDays,
		).Error
		if err != nil {
			zapLogger.Warn("Seed threshold warning", zap.String("stage", stage), zap.Error(err))
		}
	}

	// 默认季节窗口：春节前后的产能收缩期
	for key, value := range map[string]string{
		entity.SettingSeasonStart:      "12-15",
		entity.SettingSeasonEnd:        "02-15",
		entity.SettingSeasonBufferDays: "15",
	} {
		err := db.Exec(`
			INSERT INTO track_system_settings (key, value, updated_by, updated_at)
			VALUES (?, ?, 'system', NOW())
			ON CONFLICT (key) DO NOTHING`,
			key, value,
		).Error
		if err != nil {
			zapLogger.Warn("Seed setting warning", zap.String("key", key), zap.Error(err))
		}
	}
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
		Logger: logger.Default.LogMode(logger.Warn),
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
	if cfg.Host == "" {
		return nil
	}
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

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 客户只读链接，无需认证，令牌即凭证
		v1.GET("/share/:token", h.Share.Resolve)

		// 员工接口，JWT认证
		auth := v1.Group("")
		auth.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			auth.GET("/stages", h.Stage.ListStages)

			// 账户
			auth.POST("/accounts", h.Account.Create)
			auth.GET("/accounts", h.Account.List)
			auth.GET("/accounts/:id", h.Account.Get)
			auth.PUT("/accounts/:id", h.Account.Update)
			auth.POST("/accounts/:id/rotate-token", h.Account.RotateToken)

			// 订单
			auth.POST("/orders", h.Order.Create)
			auth.GET("/orders", h.Order.List)
			auth.GET("/items/template", h.Order.ItemTemplate)
			auth.GET("/orders/:id", h.Order.Get)
			auth.PATCH("/orders/:id", h.Order.Update)
			auth.DELETE("/orders/:id", h.Order.Delete)
			auth.POST("/orders/:id/lock", h.Order.Lock)
			auth.POST("/orders/:id/unlock", h.Order.Unlock)
			auth.POST("/orders/:id/stage", h.Stage.AdvanceOrder)
			auth.GET("/orders/:id/events", h.Stage.OrderEvents)

			// 行项
			auth.POST("/orders/:id/items", h.Order.AddItem)
			auth.POST("/orders/:id/items/import", h.Order.ImportItems)
			auth.PATCH("/orders/:id/items/:itemId", h.Order.UpdateItem)
			auth.DELETE("/orders/:id/items/:itemId", h.Order.DeleteItem)
			auth.POST("/orders/:id/items/:itemId/stage", h.Stage.AdvanceItem)
			auth.POST("/orders/:id/items/:itemId/archive", h.Order.ArchiveItem)
			auth.POST("/orders/:id/items/:itemId/restore", h.Order.RestoreItem)

			// 订单文档
			auth.POST("/orders/:id/document", h.Document.Upload)
			auth.GET("/orders/:id/document", h.Document.Download)

			// 审计
			auth.GET("/audit/:entityId", h.Audit.History)

			// 风险看板
			auth.GET("/risk/orders", h.Config.AtRisk)
			auth.GET("/config/thresholds", h.Config.ListThresholds)
			auth.GET("/config/season", h.Config.GetSeason)

			// 管理员接口
			admin := auth.Group("")
			admin.Use(middleware.RequireRole(service.AdminRole))
			{
				admin.GET("/audit", h.Audit.List)
				admin.PUT("/config/thresholds/:stage", h.Config.UpdateThreshold)
				admin.PUT("/config/season", h.Config.UpdateSeason)
			}
		}
	}
}
