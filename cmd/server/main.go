package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lichtrinh-service/internal/app"
	"lichtrinh-service/internal/cache"
	"lichtrinh-service/internal/config"
	"lichtrinh-service/internal/logger"
	"lichtrinh-service/internal/schedule"
	"lichtrinh-service/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogSuppress...)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := app.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to db", zap.Error(err))
	}
	defer pool.Close()

	if err := app.Migrate(ctx, pool, log); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	// Both were validated by config.Load.
	target, _ := cfg.TargetZone()
	storage, _ := cfg.StorageZone()

	appInstance := &app.App{DB: pool, Log: log, Cfg: cfg}

	var tasks schedule.TaskSource = appInstance
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis unavailable, task cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			defer client.Close()
			appInstance.TaskCache = cache.NewTasks(client, appInstance, cfg.TaskCacheTTL, log.Named("task_cache"))
			tasks = appInstance.TaskCache
		}
	}

	appInstance.Resolver = schedule.NewResolver(appInstance, tasks,
		schedule.WithZone(target),
		schedule.WithStorageZone(storage),
		schedule.WithLogger(log.Named("resolver")),
	)
	log.Info("schedule resolver ready",
		zap.String("target_tz", target.String()),
		zap.String("storage_tz", storage.String()))

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := server.Run(ctx, appInstance.Router(), cfg.Addr(), log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}
