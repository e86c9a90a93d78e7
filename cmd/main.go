package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mzhao/webqa-system/api"
	"github.com/mzhao/webqa-system/api/handler"
	"github.com/mzhao/webqa-system/config"
	"github.com/mzhao/webqa-system/internal/cache"
	"github.com/mzhao/webqa-system/internal/database"
	"github.com/mzhao/webqa-system/internal/document"
	"github.com/mzhao/webqa-system/internal/embedding"
	"github.com/mzhao/webqa-system/internal/llm"
	"github.com/mzhao/webqa-system/internal/repository"
	"github.com/mzhao/webqa-system/internal/services"
	"github.com/mzhao/webqa-system/internal/vectordb"
	"github.com/mzhao/webqa-system/pkg/storage"
	"github.com/mzhao/webqa-system/pkg/taskqueue"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server exited with error")
	}
}

// setupLogger 根据配置初始化日志记录器
func setupLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	} else {
		logger.SetOutput(os.Stdout)
	}

	return logger
}

// run 组装依赖并启动HTTP服务
func run(cfg *config.Config, logger *logrus.Logger) error {
	if logger.Level >= logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// 元数据数据库
	dbConfig := &database.Config{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  time.Hour,
	}
	if err := database.Setup(dbConfig, logger); err != nil {
		return fmt.Errorf("failed to setup database: %w", err)
	}
	defer database.Close()

	// 上传文件存储
	store, err := setupStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to setup storage: %w", err)
	}

	// 向量数据库
	vectorDB, err := vectordb.NewRepository(vectordb.Config{
		Type:              cfg.VectorDB.Type,
		Path:              cfg.VectorDB.Path,
		Dimension:         cfg.VectorDB.Dim,
		DistanceType:      vectordb.DistanceType(cfg.VectorDB.Distance),
		CreateIfNotExists: true,
	})
	if err != nil {
		return fmt.Errorf("failed to setup vector database: %w", err)
	}
	defer vectorDB.Close()

	// 嵌入模型客户端
	embedder, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithBaseURL(cfg.Embed.Endpoint),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithDimensions(cfg.VectorDB.Dim),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
	)
	if err != nil {
		return fmt.Errorf("failed to setup embedding client: %w", err)
	}

	// 大模型客户端
	llmClient, err := llm.NewClient(cfg.LLM.Provider,
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithBaseURL(cfg.LLM.Endpoint),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)
	if err != nil {
		return fmt.Errorf("failed to setup llm client: %w", err)
	}

	rag := llm.NewRAG(llmClient,
		llm.WithRAGMaxTokens(cfg.LLM.MaxTokens),
		llm.WithRAGTemperature(cfg.LLM.Temperature),
	)

	// 问答缓存
	qaCache, err := setupCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to setup cache: %w", err)
	}

	// 文本切分器和网页加载器
	splitter := document.NewTextSplitter(document.SplitterConfig{
		SplitType:    document.SplitType(cfg.Document.SplitType),
		ChunkSize:    cfg.Document.ChunkSize,
		ChunkOverlap: cfg.Document.ChunkOverlap,
	})

	loader := document.NewWebLoader(document.WebLoaderConfig{
		Timeout:   cfg.Web.Timeout,
		UserAgent: cfg.Web.UserAgent,
		RateLimit: cfg.Web.RateLimit,
		MaxDepth:  cfg.Web.MaxDepth,
	})

	// 任务队列（可选）
	var queue taskqueue.Queue
	var worker taskqueue.Worker
	if cfg.Queue.Enable {
		queueConfig := &taskqueue.Config{
			RedisAddr:     cfg.Queue.RedisAddr,
			RedisPassword: cfg.Queue.RedisPassword,
			RedisDB:       cfg.Queue.RedisDB,
			Concurrency:   cfg.Queue.Concurrency,
			RetryLimit:    cfg.Queue.RetryLimit,
			RetryDelay:    time.Duration(cfg.Queue.RetryDelay) * time.Second,
		}

		queue, err = taskqueue.NewQueue("redis", queueConfig)
		if err != nil {
			return fmt.Errorf("failed to setup task queue: %w", err)
		}
		defer queue.Close()

		redisQueue, ok := queue.(*taskqueue.RedisQueue)
		if !ok {
			return errors.New("task queue does not support worker mode")
		}
		worker = taskqueue.NewRedisWorker(redisQueue, queueConfig)
	}

	// 仓储层
	sourceRepo := repository.NewSourceRepositoryWithQueue(database.MustDB(), queue)
	chatRepo := repository.NewChatRepositoryWithDB(database.MustDB())

	// 服务层
	sourceService := services.NewSourceService(
		store,
		loader,
		splitter,
		embedder,
		vectorDB,
		services.WithSourceRepository(sourceRepo),
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithTaskQueue(queue),
		services.WithLogger(logger),
	)
	if err := sourceService.Init(); err != nil {
		return fmt.Errorf("failed to init source service: %w", err)
	}

	qaService := services.NewQAService(
		embedder,
		vectorDB,
		llmClient,
		rag,
		qaCache,
		services.WithCacheTTL(time.Duration(cfg.Cache.TTL)*time.Second),
		services.WithSearchLimit(cfg.Search.Limit),
		services.WithMinScore(cfg.Search.MinScore),
		services.WithQALogger(logger),
	)

	chatService := services.NewChatService(chatRepo, services.WithChatLogger(logger))

	// 异步模式下启动任务工作者
	if worker != nil {
		taskqueue.RegisterHandlers(worker, services.NewTaskHandlers(sourceService, logger)...)
		go func() {
			if err := worker.Start(); err != nil {
				logger.WithError(err).Error("Task worker stopped with error")
			}
		}()
		defer worker.Stop()
	}

	// 路由和HTTP服务
	var taskHandler *handler.TaskHandler
	if queue != nil {
		taskHandler = handler.NewTaskHandler(queue)
	}

	router := api.SetupRouter(
		handler.NewSourceHandler(store, sourceService),
		handler.NewWebHandler(sourceService),
		handler.NewQAHandler(qaService, chatService),
		handler.NewChatHandler(chatService, qaService),
		taskHandler,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down server")
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// setupStorage 根据配置创建文件存储
func setupStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "minio":
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
		})
	default:
		return storage.NewLocalStorage(storage.LocalConfig{Path: cfg.Path})
	}
}

// setupCache 根据配置创建问答缓存
func setupCache(cfg config.CacheConfig) (cache.Cache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.DefaultTTL = time.Duration(cfg.TTL) * time.Second

	if cfg.Enable && cfg.Type == "redis" {
		cacheConfig.Type = "redis"
		cacheConfig.RedisAddr = cfg.Address
		cacheConfig.RedisPassword = cfg.Password
		cacheConfig.RedisDB = cfg.DB
	}

	return cache.NewCache(cacheConfig)
}
