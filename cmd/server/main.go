package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	_ "github.com/azhengyongqin/cardflow/docs" // Swagger docs
	"github.com/azhengyongqin/cardflow/internal/ai"
	"github.com/azhengyongqin/cardflow/internal/blob"
	"github.com/azhengyongqin/cardflow/internal/browser"
	"github.com/azhengyongqin/cardflow/internal/cache"
	"github.com/azhengyongqin/cardflow/internal/config"
	"github.com/azhengyongqin/cardflow/internal/healthcheck"
	"github.com/azhengyongqin/cardflow/internal/linkmeta"
	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/metrics"
	"github.com/azhengyongqin/cardflow/internal/pipeline"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
	"github.com/azhengyongqin/cardflow/internal/repository"
	httpserver "github.com/azhengyongqin/cardflow/internal/server"
	"github.com/azhengyongqin/cardflow/internal/storage/postgres"
	"github.com/azhengyongqin/cardflow/internal/workflow"
	"github.com/azhengyongqin/cardflow/migrations"
)

// @title Cardflow API
// @version 1.0.0
// @description 卡片采集与异步富化流水线 - 基于 Asynq 和 PostgreSQL 的内容处理服务
// @contact.name Cardflow Support
// @license.name MIT
// @BasePath /api/v1
// @schemes http https
// @host localhost:28080

// 说明：
// - MVP 用一个进程同时跑 Gin(HTTP) 和 asynq worker，便于本地与容器部署。

func main() {
	// 初始化结构化日志（开发模式）
	if err := logger.Init(false); err != nil {
		logger.L.Fatal().Err(err).Msg("初始化日志失败")
		os.Exit(1)
	}
	defer logger.Sync()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("加载配置失败")
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		logger.L.Fatal().Err(err).Msg("配置验证失败")
	}

	logger.L.Info().
		Str("http", cfg.HTTP.Addr).
		Int("concurrency", cfg.Asynq.Concurrency).
		Msg("服务启动")

	httpAddr := cfg.HTTP.Addr
	redisAddr := cfg.Redis.Addr
	postgresDSN := cfg.Postgres.DSN

	// 确保 Redis 地址格式正确
	redisURI := redisAddr
	if !strings.HasPrefix(redisURI, "redis://") && !strings.HasPrefix(redisURI, "rediss://") {
		redisURI = "redis://" + redisURI + "/0"
	}

	// 使用配置的连接池参数
	dbCfg := postgres.DBConfig{
		MaxOpenConns:    int(cfg.DBPool.MaxConns),
		MaxIdleConns:    int(cfg.DBPool.MinConns),
		ConnMaxLifetime: cfg.DBPool.MaxConnLifetime,
		ConnMaxIdleTime: cfg.DBPool.MaxConnIdleTime,
	}

	db, err := postgres.NewDBWithConfig(context.Background(), postgresDSN, dbCfg)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("连接数据库失败")
	}
	defer db.Close()

	// 应用迁移（嵌入的 SQL 文件，按文件名顺序执行）
	sqlDB, err := db.SqlDB()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("获取 sql.DB 失败")
	}
	if err := postgres.ApplyMigrations(context.Background(), sqlDB, migrations.FS, "."); err != nil {
		logger.L.Fatal().Err(err).Msg("执行迁移失败")
	}

	cardRepo := repository.NewCardRepo(db.DB)
	runRepo := repository.NewRunRepo(db.DB)

	// pgx 连接池：健康检查 + 连接池指标
	poolCfg, err := pgxpool.ParseConfig(postgresDSN)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("解析 POSTGRES_DSN 失败")
	}
	poolCfg.MaxConns = cfg.DBPool.MaxConns
	poolCfg.MinConns = cfg.DBPool.MinConns
	poolCfg.MaxConnLifetime = cfg.DBPool.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.DBPool.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.DBPool.HealthCheckPeriod

	pgPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("创建 pgx 连接池失败")
	}
	defer pgPool.Close()

	// Asynq client：HTTP 入队 + 流水线内部的再投递
	asynqClient := asynqx.NewClient(redisURI)
	defer asynqClient.Close()

	// 链接预览缓存
	cacheStore, err := cache.NewRedisCache(redisURI)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("连接 Redis 缓存失败")
	}
	defer cacheStore.Close()

	// 对象存储：未配置 bucket 时缩略图/截图阶段会降级跳过落盘
	var blobStore blob.Store
	if cfg.S3.Bucket != "" {
		s3Store, err := blob.NewS3Store(context.Background(), cfg.S3)
		if err != nil {
			logger.L.Fatal().Err(err).Msg("初始化 S3 存储失败")
		}
		blobStore = s3Store
	} else {
		logger.L.Warn().Msg("未配置 S3_BUCKET，文件相关阶段将降级")
	}

	pipe := pipeline.New(pipeline.Deps{
		Cards:    cardRepo,
		Runs:     runRepo,
		Blobs:    blobStore,
		Browser:  browser.NewClient(cfg.Browser),
		AI:       ai.NewClient(cfg.AI),
		Fetcher:  linkmeta.NewFetcher(10 * time.Second),
		Cache:    cacheStore,
		Enqueuer: asynqClient,
		Config:   cfg.Pipeline,
	})

	manager := workflow.NewManager(asynqClient, runRepo, cardRepo, pipe)
	worker := workflow.NewWorker(redisAddr, cfg.Asynq.Concurrency, manager)

	// 创建健康检查器
	healthChecker := healthcheck.NewHealthChecker(pgPool, asynqClient.Client, redisAddr, cfg.Browser.Endpoint)

	httpSrv := &http.Server{
		Addr: httpAddr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			CardRepo:      cardRepo,
			Manager:       manager,
			HealthChecker: healthChecker,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 连接池指标上报
	go func() {
		t := time.NewTicker(cfg.DBPool.HealthCheckPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s := pgPool.Stat()
				metrics.UpdateDBPoolStats(s.AcquiredConns(), s.IdleConns(), s.MaxConns())
			}
		}
	}()

	go func() {
		logger.L.Info().Msg("工作流 worker 启动")
		if err := worker.Run(); err != nil {
			logger.L.Fatal().Err(err).Msg("worker 错误")
		}
	}()

	go func() {
		logger.L.Info().Str("addr", httpAddr).Msg("HTTP 服务监听")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatal().Err(err).Msg("HTTP 服务错误")
		}
	}()

	<-ctx.Done()

	worker.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	logger.L.Info().Msg("服务已优雅关闭")
}
