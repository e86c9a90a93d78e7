package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mzhao/webqa-system/internal/models"
	"github.com/mzhao/webqa-system/pkg/taskqueue"
)

// ErrSourceExists 来源已存在错误
var ErrSourceExists = errors.New("source already exists")

// IngestWebPage 抓取并入库单个网页
// 同一URL重复入库时返回已有来源的ID和ErrSourceExists
func (s *SourceService) IngestWebPage(ctx context.Context, pageURL string) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}

	if pageURL == "" {
		return "", errors.New("url cannot be empty")
	}

	// URL去重
	if existing, err := s.repo.GetByURL(pageURL); err == nil {
		s.logger.WithFields(logrus.Fields{
			"url":       pageURL,
			"source_id": existing.ID,
		}).Info("Web page already ingested")
		return existing.ID, ErrSourceExists
	} else if !errors.Is(err, models.ErrSourceNotFound) {
		return "", fmt.Errorf("failed to check existing source: %w", err)
	}

	sourceID := uuid.New().String()
	if err := s.statusManager.RegisterWebSource(ctx, sourceID, pageURL); err != nil {
		return "", fmt.Errorf("failed to register web source: %w", err)
	}

	if s.asyncEnabled && s.taskQueue != nil {
		if err := s.enqueueWebPageIngest(ctx, sourceID, pageURL); err != nil {
			return "", err
		}
		return sourceID, nil
	}

	if err := s.ProcessWebPage(ctx, sourceID, pageURL); err != nil {
		return "", err
	}

	return sourceID, nil
}

// ProcessWebPage 抓取单个网页并执行入库管道
// 来源记录必须已登记
func (s *SourceService) ProcessWebPage(ctx context.Context, sourceID string, pageURL string) error {
	if err := s.Init(); err != nil {
		return err
	}

	if s.loader == nil {
		return errors.New("web loader not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.statusManager.MarkAsProcessing(ctx, sourceID); err != nil {
		s.logger.WithError(err).Warn("Failed to mark source as processing")
	}
	if err := s.statusManager.UpdateStage(ctx, sourceID, models.StageFetching, 5); err != nil {
		s.logger.WithError(err).Debug("Failed to update source stage")
	}

	doc, err := s.loader.LoadOne(ctx, pageURL)
	if err != nil {
		s.failSource(ctx, sourceID, fmt.Sprintf("failed to fetch page: %v", err))
		return fmt.Errorf("failed to fetch page: %w", err)
	}

	count, err := s.IngestDocument(ctx, sourceID, doc)
	if err != nil {
		s.failSource(ctx, sourceID, err.Error())
		return err
	}

	if err := s.statusManager.MarkAsCompleted(ctx, sourceID, doc.Title, count); err != nil {
		s.logger.WithError(err).Error("Failed to mark source as completed")
	}

	s.logger.WithFields(logrus.Fields{
		"source_id":     sourceID,
		"url":           pageURL,
		"segment_count": count,
	}).Info("Web page processing completed")

	return nil
}

// enqueueWebPageIngest 将网页入库任务加入队列
func (s *SourceService) enqueueWebPageIngest(ctx context.Context, sourceID string, pageURL string) error {
	payload := &taskqueue.WebPageIngestPayload{
		URL:       pageURL,
		ChunkSize: 1000,
		Overlap:   200,
		SplitType: "recursive",
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskWebPageIngest, sourceID, payload)
	if err != nil {
		s.failSource(ctx, sourceID, fmt.Sprintf("failed to enqueue ingest task: %v", err))
		return fmt.Errorf("failed to enqueue ingest task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"url":       pageURL,
		"task_id":   taskID,
	}).Info("Web page ingest task enqueued")

	return nil
}

// CrawlSite 从入口URL递归抓取并入库整个站点
// 异步模式下入队一个爬取任务并返回任务ID；
// 同步模式下直接抓取并返回生成的来源ID列表
func (s *SourceService) CrawlSite(ctx context.Context, baseURL string, maxDepth int) (string, []string, error) {
	if err := s.Init(); err != nil {
		return "", nil, err
	}

	if baseURL == "" {
		return "", nil, errors.New("base url cannot be empty")
	}

	if s.asyncEnabled && s.taskQueue != nil {
		payload := &taskqueue.WebCrawlPayload{
			BaseURL:   baseURL,
			MaxDepth:  maxDepth,
			ChunkSize: 1000,
			Overlap:   200,
			SplitType: "recursive",
		}

		// 爬取任务不绑定单个来源，用爬取批次ID占位
		crawlID := "crawl-" + uuid.New().String()
		taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskWebCrawl, crawlID, payload)
		if err != nil {
			return "", nil, fmt.Errorf("failed to enqueue crawl task: %w", err)
		}

		s.logger.WithFields(logrus.Fields{
			"base_url": baseURL,
			"task_id":  taskID,
		}).Info("Site crawl task enqueued")

		return taskID, nil, nil
	}

	sourceIDs, err := s.crawlSiteSync(ctx, baseURL)
	return "", sourceIDs, err
}

// crawlSiteSync 同步执行站点爬取和入库
func (s *SourceService) crawlSiteSync(ctx context.Context, baseURL string) ([]string, error) {
	if s.loader == nil {
		return nil, errors.New("web loader not configured")
	}

	docs, err := s.loader.Crawl(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to crawl site: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"base_url":   baseURL,
		"page_count": len(docs),
	}).Info("Site crawl fetched pages")

	var sourceIDs []string
	for _, doc := range docs {
		// 已入库的页面跳过
		if existing, err := s.repo.GetByURL(doc.Source); err == nil {
			sourceIDs = append(sourceIDs, existing.ID)
			continue
		}

		sourceID := uuid.New().String()
		if err := s.statusManager.RegisterWebSource(ctx, sourceID, doc.Source); err != nil {
			s.logger.WithError(err).WithField("url", doc.Source).Warn("Failed to register crawled page")
			continue
		}
		if err := s.statusManager.MarkAsProcessing(ctx, sourceID); err != nil {
			s.logger.WithError(err).Debug("Failed to mark source as processing")
		}

		count, err := s.IngestDocument(ctx, sourceID, doc)
		if err != nil {
			// 单个页面失败不中断整体爬取
			s.failSource(ctx, sourceID, err.Error())
			s.logger.WithError(err).WithField("url", doc.Source).Warn("Failed to ingest crawled page")
			continue
		}

		if err := s.statusManager.MarkAsCompleted(ctx, sourceID, doc.Title, count); err != nil {
			s.logger.WithError(err).Error("Failed to mark source as completed")
		}

		sourceIDs = append(sourceIDs, sourceID)
	}

	if len(sourceIDs) == 0 {
		return nil, fmt.Errorf("crawl of %s ingested no pages", baseURL)
	}

	return sourceIDs, nil
}
