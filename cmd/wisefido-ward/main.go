package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-ward/internal/auth"
	"wisefido-ward/internal/config"
	"wisefido-ward/internal/database"
	httpapi "wisefido-ward/internal/http"
	"wisefido-ward/internal/logger"
	"wisefido-ward/internal/notify"
	"wisefido-ward/internal/projector"
	"wisefido-ward/internal/redisx"
	"wisefido-ward/internal/service"
	"wisefido-ward/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-ward")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 存储选择：DB 可用走 Postgres+Redis 变更通道，否则退化为内存存储（联测/开发）
	var (
		docStore    store.Store
		db          *sql.DB
		redisClient *redisx.Client
	)
	if cfg.DBEnabled {
		d, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		db = d
		if err := store.EnsureSchema(ctx, db); err != nil {
			log.Fatal("failed to ensure schema", zap.Error(err))
		}
		redisClient = redisx.NewRedisClient(&cfg.Redis)
		if err := redisx.Ping(ctx, redisClient); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		docStore = store.NewPostgresStore(db, redisClient, log)
		log.Info("DB enabled for wisefido-ward")
	} else {
		docStore = store.NewMemoryStore()
		log.Warn("DB disabled, using in-memory store")
	}

	authState := auth.NewState()
	sessions := auth.NewSessions(authState)

	// Services + 出院后置钩子
	pendencyService := service.NewPendencyService(docStore, log)
	kpiService := service.NewKPIService(docStore, log)
	historyService := service.NewHistoryService(docStore, log)
	regulationClient := notify.NewClient(cfg.Regulation, log)

	hooks := []service.PostCommitHook{
		service.NewPendencyCleanupHook(pendencyService),
		service.NewKPICounterHook(kpiService),
	}
	if regulationClient.Enabled() {
		hooks = append(hooks, service.NewRegulationWebhookHook(regulationClient))
	}
	wardService := service.NewWardService(docStore, log, hooks...)

	if err := kpiService.Seed(ctx); err != nil {
		log.Warn("failed to seed kpi counters", zap.Error(err))
	}

	proj := projector.New(docStore, authState, log)
	go proj.Run(ctx)

	router := httpapi.NewRouter(sessions, log)
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(sessions, log))
	router.RegisterWardRoutes(httpapi.NewWardHandler(wardService, proj, log))
	router.RegisterPendencyRoutes(httpapi.NewPendencyHandler(pendencyService, log))
	router.RegisterHistoryRoutes(httpapi.NewHistoryHandler(historyService, log))
	router.RegisterKPIRoutes(httpapi.NewKPIHandler(kpiService, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server exited", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisx.Close(redisClient)
	}
	if db != nil {
		_ = database.Close(db)
	}
}
