package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/mzhao/webqa-system/config"
	"github.com/mzhao/webqa-system/internal/database"
	"github.com/mzhao/webqa-system/internal/document"
	"github.com/mzhao/webqa-system/internal/embedding"
	"github.com/mzhao/webqa-system/internal/repository"
	"github.com/mzhao/webqa-system/internal/services"
	"github.com/mzhao/webqa-system/internal/vectordb"
	"github.com/mzhao/webqa-system/pkg/storage"
)

// 命令行站点爬取工具
// 抓取整个站点并写入与服务端相同的向量库和元数据库，
// 适合在服务启动前批量预热知识库。
func main() {
	configPath := flag.String("config", "", "配置文件路径")
	baseURL := flag.String("url", "", "要爬取的站点入口URL")
	maxDepth := flag.Int("depth", 0, "爬取深度，0表示使用配置值")
	timeout := flag.Duration("timeout", 30*time.Minute, "整体爬取超时时间")
	flag.Parse()

	if *baseURL == "" {
		fmt.Fprintln(os.Stderr, "usage: crawl -url <base-url> [-depth N] [-config path]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	if *maxDepth > 0 {
		cfg.Web.MaxDepth = *maxDepth
	}

	// CLI模式下只在出错时输出日志
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	if err := database.Setup(&database.Config{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  time.Hour,
	}, logger); err != nil {
		fatal("failed to setup database: %v", err)
	}
	defer database.Close()

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: cfg.Storage.Path})
	if err != nil {
		fatal("failed to setup storage: %v", err)
	}

	vectorDB, err := vectordb.NewRepository(vectordb.Config{
		Type:              cfg.VectorDB.Type,
		Path:              cfg.VectorDB.Path,
		Dimension:         cfg.VectorDB.Dim,
		DistanceType:      vectordb.DistanceType(cfg.VectorDB.Distance),
		CreateIfNotExists: true,
	})
	if err != nil {
		fatal("failed to setup vector database: %v", err)
	}
	defer vectorDB.Close()

	embedder, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithBaseURL(cfg.Embed.Endpoint),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithDimensions(cfg.VectorDB.Dim),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
	)
	if err != nil {
		fatal("failed to setup embedding client: %v", err)
	}

	// 抓取进度用旋转进度条展示
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("crawling "+*baseURL),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	loader := document.NewWebLoader(document.WebLoaderConfig{
		Timeout:   cfg.Web.Timeout,
		UserAgent: cfg.Web.UserAgent,
		RateLimit: cfg.Web.RateLimit,
		MaxDepth:  cfg.Web.MaxDepth,
		OnProgress: func(pageURL string) {
			_ = bar.Add(1)
			bar.Describe("fetched " + pageURL)
		},
	})

	splitter := document.NewTextSplitter(document.SplitterConfig{
		SplitType:    document.SplitType(cfg.Document.SplitType),
		ChunkSize:    cfg.Document.ChunkSize,
		ChunkOverlap: cfg.Document.ChunkOverlap,
	})

	sourceRepo := repository.NewSourceRepositoryWithDB(database.MustDB())
	sourceService := services.NewSourceService(
		store,
		loader,
		splitter,
		embedder,
		vectorDB,
		services.WithSourceRepository(sourceRepo),
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithTimeout(*timeout),
		services.WithLogger(logger),
	)
	if err := sourceService.Init(); err != nil {
		fatal("failed to init source service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	_, sourceIDs, err := sourceService.CrawlSite(ctx, *baseURL, cfg.Web.MaxDepth)
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	if err != nil {
		fatal("crawl failed: %v", err)
	}

	green := color.New(color.FgGreen, color.Bold)
	cyan := color.New(color.FgCyan)

	green.Printf("Crawl completed in %s\n", time.Since(start).Round(time.Second))
	cyan.Printf("Ingested %d pages:\n", len(sourceIDs))

	for _, sourceID := range sourceIDs {
		info, err := sourceService.GetSourceInfo(ctx, sourceID)
		if err != nil {
			fmt.Printf("  %s\n", sourceID)
			continue
		}
		fmt.Printf("  %s  %v (%v segments)\n", sourceID, info["url"], info["segment_count"])
	}
}

// fatal 输出错误并退出
func fatal(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
