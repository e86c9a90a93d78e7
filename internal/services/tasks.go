package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mzhao/webqa-system/pkg/taskqueue"
)

// NewTaskHandlers 构建来源服务的任务处理器集合
// 返回的处理器可通过taskqueue.RegisterHandlers注册到工作者
func NewTaskHandlers(srv *SourceService, logger *logrus.Logger) []taskqueue.Handler {
	return []taskqueue.Handler{
		taskqueue.NewFuncHandler(srv.handleWebPageIngestTask, logger, taskqueue.TaskWebPageIngest),
		taskqueue.NewFuncHandler(srv.handleFileIngestTask, logger, taskqueue.TaskFileIngest),
		taskqueue.NewFuncHandler(srv.handleWebCrawlTask, logger, taskqueue.TaskWebCrawl),
	}
}

// handleWebPageIngestTask 处理单个网页入库任务
func (s *SourceService) handleWebPageIngestTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.WebPageIngestPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}
	if payload.URL == "" {
		return fmt.Errorf("%w: url is empty", taskqueue.ErrInvalidPayload)
	}

	if err := s.ProcessWebPage(ctx, task.SourceID, payload.URL); err != nil {
		return err
	}

	s.writeIngestResult(ctx, task)
	return nil
}

// handleFileIngestTask 处理上传文件入库任务
func (s *SourceService) handleFileIngestTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.FileIngestPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}
	if payload.FilePath == "" {
		return fmt.Errorf("%w: file path is empty", taskqueue.ErrInvalidPayload)
	}

	if err := s.processFileSync(ctx, task.SourceID, payload.FilePath); err != nil {
		return err
	}

	s.writeIngestResult(ctx, task)
	return nil
}

// handleWebCrawlTask 处理站点爬取任务
// 抓取所有页面后逐页入库，并将来源ID列表写入任务结果
func (s *SourceService) handleWebCrawlTask(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.WebCrawlPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}
	if payload.BaseURL == "" {
		return fmt.Errorf("%w: base url is empty", taskqueue.ErrInvalidPayload)
	}

	if s.loader == nil {
		return errors.New("web loader not configured")
	}

	docs, err := s.loader.Crawl(ctx, payload.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to crawl site: %w", err)
	}

	var sourceIDs []string
	for _, doc := range docs {
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
		return fmt.Errorf("crawl of %s ingested no pages", payload.BaseURL)
	}

	// 写入爬取结果，状态由工作者统一更新
	result := &taskqueue.WebCrawlResult{
		BaseURL:   payload.BaseURL,
		PageCount: len(sourceIDs),
		SourceIDs: sourceIDs,
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.UpdateTaskStatus(ctx, task.ID, task.Status, result, ""); err != nil {
			s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to write crawl result")
		}
	}

	return nil
}

// writeIngestResult 将入库结果写入任务记录
func (s *SourceService) writeIngestResult(ctx context.Context, task *taskqueue.Task) {
	if s.taskQueue == nil {
		return
	}

	src, err := s.statusManager.GetSource(ctx, task.SourceID)
	if err != nil {
		s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to load source for task result")
		return
	}

	result := &taskqueue.IngestResult{
		SourceID:   src.ID,
		Title:      src.Title,
		ChunkCount: src.SegmentCount,
		Dimension:  s.vectorDB.GetDimension(),
	}

	if err := s.taskQueue.UpdateTaskStatus(ctx, task.ID, task.Status, result, ""); err != nil {
		s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to write ingest result")
	}
}
