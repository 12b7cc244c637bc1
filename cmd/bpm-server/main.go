package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blingmoon/simple-bpm/bpm"
	"github.com/blingmoon/simple-bpm/internal/config"
	"github.com/blingmoon/simple-bpm/internal/logger"
	"github.com/blingmoon/simple-bpm/internal/rest"
	"github.com/blingmoon/simple-bpm/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "yaml 配置文件")
	envFile := flag.String("env", ".env", "环境变量文件, 不存在时忽略")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		panic(err)
	}
	log, err := logger.New(logger.Options{
		Env:        cfg.Logging.Env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("bpm server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	if err := store.AutoMigrate(db); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return errors.WithMessagef(err, "ping redis failed, addr: %s", cfg.Redis.Addr)
		}
	}

	opts := &bpm.Options{
		DB:                db,
		DocumentDir:       cfg.Document.Dir,
		DocumentCacheSize: cfg.Document.CacheSizeMax,
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenTTL:          cfg.Auth.TokenTTL,
		LockMaxTime:       cfg.Lock.MaxLockTime,
		LockWaitTimeout:   cfg.Lock.WaitTimeout,
		TechnicalUser:     cfg.Auth.TechnicalUser,
		TechnicalPassword: cfg.Auth.TechnicalPassword,
		PlatformVersion:   cfg.Platform.Version,
		Logger:            log,
	}
	// 接口类型的 nil 和 *redis.Client 的 nil 不一样
	if redisClient != nil {
		opts.Redis = redisClient
	}
	client, err := bpm.New(opts)
	if err != nil {
		return err
	}
	if err := bootstrap(context.Background(), client, cfg, log); err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           rest.NewServer(client, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("bpm server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return errors.WithMessage(err, "listen failed")
	case <-quit:
	}
	log.Info("shutting down bpm server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// bootstrap 初始化平台和默认租户, 已经存在时跳过
func bootstrap(ctx context.Context, client *bpm.Client, cfg *config.Config, log *zap.Logger) error {
	if _, err := client.Platform.CreatePlatform(ctx, cfg.Auth.TechnicalUser); err != nil {
		return err
	}
	name := cfg.Platform.DefaultTenant
	tenant, err := client.Platform.GetTenantByName(ctx, name)
	if errors.Is(err, bpm.ErrTenantNotFound) {
		tenant, err = client.Platform.CreateTenant(ctx, &bpm.TenantCreator{Name: name, Description: "default tenant"})
		if err != nil {
			return err
		}
		log.Info("default tenant created", zap.String("tenant", name), zap.Int64("tenant_id", tenant.ID))
	}
	if err != nil {
		return err
	}
	if tenant.Status == bpm.TenantStatusDeactivated {
		return client.Platform.ActivateTenant(ctx, tenant.ID)
	}
	return nil
}
