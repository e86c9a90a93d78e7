package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/mzhao/webqa-system/internal/document"
	"github.com/mzhao/webqa-system/internal/embedding"
	"github.com/mzhao/webqa-system/internal/models"
	"github.com/mzhao/webqa-system/internal/repository"
	"github.com/mzhao/webqa-system/internal/vectordb"
	"github.com/mzhao/webqa-system/pkg/storage"
	"github.com/mzhao/webqa-system/pkg/taskqueue"
)

// SourceService 来源服务
// 负责协调网页抓取、文件解析、分块、向量化和入库
type SourceService struct {
	storage       storage.Storage             // 文件存储服务
	loader        *document.WebLoader         // 网页加载器
	splitter      document.Splitter           // 文本切分器
	embedder      embedding.Client            // 嵌入模型客户端
	vectorDB      vectordb.Repository         // 向量数据库
	repo          repository.SourceRepository // 来源元数据存储
	statusManager *SourceStatusManager        // 来源状态管理器
	taskQueue     taskqueue.Queue             // 任务队列
	asyncEnabled  bool                        // 是否启用异步处理
	batchSize     int                         // 向量化批处理大小
	timeout       time.Duration               // 处理超时时间
	logger        *logrus.Logger              // 日志记录器
}

// SourceOption 来源服务配置选项
type SourceOption func(*SourceService)

// NewSourceService 创建来源服务实例
func NewSourceService(
	store storage.Storage,
	loader *document.WebLoader,
	splitter document.Splitter,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	opts ...SourceOption,
) *SourceService {
	srv := &SourceService{
		storage:      store,
		loader:       loader,
		splitter:     splitter,
		embedder:     embedder,
		vectorDB:     vectorDB,
		batchSize:    16,
		timeout:      time.Minute * 5,
		logger:       logrus.New(),
		asyncEnabled: false,
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithBatchSize 设置向量化批处理大小
func WithBatchSize(size int) SourceOption {
	return func(s *SourceService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) SourceOption {
	return func(s *SourceService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) SourceOption {
	return func(s *SourceService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSourceRepository 设置来源仓储
func WithSourceRepository(repo repository.SourceRepository) SourceOption {
	return func(s *SourceService) {
		s.repo = repo
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *SourceStatusManager) SourceOption {
	return func(s *SourceService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列，设置后默认启用异步处理
func WithTaskQueue(queue taskqueue.Queue) SourceOption {
	return func(s *SourceService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithAsyncProcessing 设置是否启用异步处理
func WithAsyncProcessing(enabled bool) SourceOption {
	return func(s *SourceService) {
		s.asyncEnabled = enabled
	}
}

// Init 初始化来源服务，确保必要的依赖都已设置
func (s *SourceService) Init() error {
	if s.repo == nil {
		s.repo = repository.NewSourceRepository()
	}
	if s.statusManager == nil {
		s.statusManager = NewSourceStatusManager(s.repo, s.logger)
	}
	return nil
}

// ProcessFile 处理上传文件（解析、分块、向量化、入库）
// 来源记录必须已通过statusManager登记
func (s *SourceService) ProcessFile(ctx context.Context, sourceID string, filePath string) error {
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"file_path": filePath,
	}).Info("Starting file processing")

	if sourceID == "" {
		return errors.New("sourceID cannot be empty")
	}
	if filePath == "" {
		return errors.New("filePath cannot be empty")
	}

	if s.asyncEnabled && s.taskQueue != nil {
		return s.enqueueFileIngest(ctx, sourceID, filePath)
	}

	return s.processFileSync(ctx, sourceID, filePath)
}

// enqueueFileIngest 将文件入库任务加入队列并立即返回
func (s *SourceService) enqueueFileIngest(ctx context.Context, sourceID string, filePath string) error {
	fileName := filepath.Base(filePath)

	payload := &taskqueue.FileIngestPayload{
		FilePath:  filePath,
		FileName:  fileName,
		ChunkSize: 1000,
		Overlap:   200,
		SplitType: string(document.ByRecursive),
		Metadata: map[string]string{
			"source": "api",
		},
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskFileIngest, sourceID, payload)
	if err != nil {
		s.failSource(ctx, sourceID, fmt.Sprintf("failed to enqueue ingest task: %v", err))
		return fmt.Errorf("failed to enqueue ingest task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"task_id":   taskID,
	}).Info("File ingest task enqueued")

	return nil
}

// processFileSync 同步处理上传文件
func (s *SourceService) processFileSync(ctx context.Context, sourceID string, filePath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.statusManager.MarkAsProcessing(ctx, sourceID); err != nil {
		s.logger.WithError(err).Warn("Failed to mark source as processing")
	}

	content, err := s.parseFile(filePath)
	if err != nil {
		s.failSource(ctx, sourceID, fmt.Sprintf("failed to parse file: %v", err))
		return fmt.Errorf("failed to parse file: %w", err)
	}

	doc := document.Document{
		Content: content,
		Title:   filepath.Base(filePath),
		Source:  filePath,
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
		"segment_count": count,
	}).Info("File processing completed")

	return nil
}

// IngestDocument 将一个已加载的文档切分、向量化并入库
// 返回成功入库的文本块数量，网页和文件来源共用此管道
func (s *SourceService) IngestDocument(ctx context.Context, sourceID string, doc document.Document) (int, error) {
	if err := s.Init(); err != nil {
		return 0, err
	}

	if err := s.statusManager.UpdateStage(ctx, sourceID, models.StageChunking, 20); err != nil {
		s.logger.WithError(err).Debug("Failed to update source stage")
	}

	chunks, err := s.splitter.Split(doc.Content)
	if err != nil {
		return 0, fmt.Errorf("failed to split content: %w", err)
	}
	if len(chunks) == 0 {
		return 0, errors.New("document produced no text chunks")
	}

	if err := s.statusManager.UpdateStage(ctx, sourceID, models.StageVectorizing, 30); err != nil {
		s.logger.WithError(err).Debug("Failed to update source stage")
	}

	if err := s.processBatches(ctx, sourceID, doc, chunks); err != nil {
		return 0, err
	}

	return len(chunks), nil
}

// parseFile 解析上传文件内容
func (s *SourceService) parseFile(filePath string) (string, error) {
	s.logger.WithField("file_path", filePath).Debug("Parsing file")

	// 先按存储ID获取文件
	fileID := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	reader, err := s.storage.Get(fileID)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to get file by id, trying with path")
		reader, err = s.storage.Get(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to get file from storage: %w", err)
		}
	}
	defer reader.Close()

	parser, err := document.ParserFactory(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create parser: %w", err)
	}

	content, err := parser.ParseReader(reader, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to parse file: %w", err)
	}

	return content, nil
}

// processBatches 批量向量化并存储文本块
func (s *SourceService) processBatches(ctx context.Context, sourceID string, doc document.Document, chunks []document.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	totalBatches := (len(chunks) + s.batchSize - 1) / s.batchSize
	processedBatches := 0

	for i := 0; i < len(chunks); i += s.batchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := i + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}

		records := make([]vectordb.Chunk, len(batch))
		segments := make([]*models.SourceSegment, len(batch))

		for j := range batch {
			segmentID := fmt.Sprintf("%s_%d", sourceID, batch[j].Index)

			meta := map[string]interface{}{
				"index": batch[j].Index,
			}
			if doc.Title != "" {
				meta["title"] = doc.Title
			}
			for k, v := range doc.Meta {
				meta[k] = v
			}

			records[j] = vectordb.Chunk{
				ID:        segmentID,
				SourceID:  sourceID,
				Source:    doc.Source,
				Position:  batch[j].Index,
				Text:      batch[j].Text,
				Vector:    vectors[j],
				CreatedAt: time.Now(),
				Metadata:  meta,
			}

			segments[j] = &models.SourceSegment{
				SourceID:  sourceID,
				SegmentID: segmentID,
				Position:  batch[j].Index,
				Text:      batch[j].Text,
				VectorID:  segmentID,
			}
		}

		if err := s.vectorDB.AddBatch(records); err != nil {
			return fmt.Errorf("failed to store vectors: %w", err)
		}

		if err := s.repo.SaveSegments(segments); err != nil {
			// 向量已入库，段落记录失败不中断处理
			s.logger.WithError(err).Error("Failed to save segments to database")
		}

		processedBatches++
		// 向量化阶段占30%到90%的进度区间
		progress := 30 + int(float64(processedBatches)/float64(totalBatches)*60)
		if err := s.statusManager.UpdateProgress(ctx, sourceID, progress); err != nil {
			s.logger.WithError(err).Debug("Failed to update source progress")
		}
	}

	return nil
}

// DeleteSource 删除来源及其相关数据
func (s *SourceService) DeleteSource(ctx context.Context, sourceID string) error {
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithField("source_id", sourceID).Info("Deleting source")

	src, err := s.statusManager.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}

	// 1. 从向量数据库中删除
	if err := s.vectorDB.DeleteBySource(sourceID); err != nil {
		s.logger.WithError(err).Error("Failed to delete source vectors")
		return fmt.Errorf("failed to delete source vectors: %w", err)
	}

	// 2. 文件来源还需要删除存储的文件
	if src.Type == models.SourceTypeFile {
		if err := s.storage.Delete(sourceID); err != nil {
			s.logger.WithError(err).Warn("Failed to delete file from storage")
		}
	}

	// 3. 删除来源记录（级联删除段落和任务关联）
	if err := s.statusManager.DeleteSource(ctx, sourceID); err != nil {
		s.logger.WithError(err).Error("Failed to delete source record")
		return fmt.Errorf("failed to delete source record: %w", err)
	}

	s.logger.WithField("source_id", sourceID).Info("Source deleted successfully")
	return nil
}

// GetSourceInfo 获取来源信息
func (s *SourceService) GetSourceInfo(ctx context.Context, sourceID string) (map[string]interface{}, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	src, err := s.statusManager.GetSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	info := map[string]interface{}{
		"source_id":     src.ID,
		"type":          src.Type,
		"title":         src.Title,
		"status":        src.Status,
		"created_at":    src.CreatedAt.Format(time.RFC3339),
		"updated_at":    src.UpdatedAt.Format(time.RFC3339),
		"progress":      src.Progress,
		"segment_count": src.SegmentCount,
	}

	if src.Type == models.SourceTypeWeb {
		info["url"] = src.URL
	} else {
		info["filename"] = src.FileName
		info["size"] = src.FileSize
	}

	if src.Error != "" {
		info["error"] = src.Error
	}
	if src.ProcessedAt != nil {
		info["processed_at"] = src.ProcessedAt.Format(time.RFC3339)
	}
	if src.Tags != "" {
		info["tags"] = src.Tags
	}
	if src.CurrentStage != "" {
		info["stage"] = src.CurrentStage
	}

	// 异步模式下附带最近的任务信息
	if s.asyncEnabled && s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksBySource(ctx, sourceID)
		if err == nil && len(tasks) > 0 {
			latest := tasks[0]
			for _, task := range tasks {
				if task.UpdatedAt.After(latest.UpdatedAt) {
					latest = task
				}
			}

			info["task_id"] = latest.ID
			info["task_status"] = latest.Status
			if latest.Error != "" {
				info["task_error"] = latest.Error
			}
		}
	}

	return info, nil
}

// GetSourceStatus 获取来源处理状态
func (s *SourceService) GetSourceStatus(ctx context.Context, sourceID string) (models.SourceStatus, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	return s.statusManager.GetStatus(ctx, sourceID)
}

// GetSourceTasks 获取来源相关的任务
func (s *SourceService) GetSourceTasks(ctx context.Context, sourceID string) ([]*taskqueue.Task, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		return nil, errors.New("async processing not enabled")
	}

	return s.taskQueue.GetTasksBySource(ctx, sourceID)
}

// WaitForProcessing 等待来源处理完成
func (s *SourceService) WaitForProcessing(ctx context.Context, sourceID string, timeout time.Duration) error {
	if err := s.Init(); err != nil {
		return err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		status, err := s.statusManager.GetStatus(ctx, sourceID)
		if err != nil {
			return err
		}
		if status == models.SourceStatusFailed {
			return errors.New("source processing failed")
		}
		if status != models.SourceStatusCompleted {
			return errors.New("source not processed")
		}
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tasks, err := s.taskQueue.GetTasksBySource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to get source tasks: %w", err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no processing tasks found for source %s", sourceID)
	}

	// 等待最新创建的任务
	latest := tasks[0]
	for _, task := range tasks {
		if task.CreatedAt.After(latest.CreatedAt) {
			latest = task
		}
	}

	if _, err := s.taskQueue.WaitForTask(ctx, latest.ID, timeout); err != nil {
		return fmt.Errorf("failed to wait for source processing: %w", err)
	}

	status, err := s.statusManager.GetStatus(ctx, sourceID)
	if err != nil {
		return err
	}
	if status == models.SourceStatusFailed {
		return errors.New("source processing failed")
	}
	if status != models.SourceStatusCompleted {
		return errors.New("source processing incomplete")
	}

	return nil
}

// CountSegments 统计来源的文本块数量
func (s *SourceService) CountSegments(ctx context.Context, sourceID string) (int, error) {
	if err := s.Init(); err != nil {
		return 0, err
	}
	return s.repo.CountSegments(sourceID)
}

// ListSources 获取来源列表
func (s *SourceService) ListSources(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Source, int64, error) {
	if err := s.Init(); err != nil {
		return nil, 0, err
	}
	return s.statusManager.ListSources(ctx, offset, limit, filters)
}

// UpdateSourceTags 更新来源标签
func (s *SourceService) UpdateSourceTags(ctx context.Context, sourceID string, tags string) error {
	if err := s.Init(); err != nil {
		return err
	}

	src, err := s.statusManager.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}

	src.Tags = tags
	return s.repo.Update(src)
}

// UpdateSourceMetadata 更新来源元数据
func (s *SourceService) UpdateSourceMetadata(ctx context.Context, sourceID string, metadata datatypes.JSON) error {
	if err := s.Init(); err != nil {
		return err
	}

	src, err := s.statusManager.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}

	src.Metadata = metadata
	return s.repo.Update(src)
}

// failSource 将来源标记为失败状态
func (s *SourceService) failSource(ctx context.Context, sourceID string, errorMsg string) {
	if s.statusManager == nil {
		s.logger.Error("Cannot mark source as failed: status manager not initialized")
		return
	}

	if err := s.statusManager.MarkAsFailed(ctx, sourceID, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"source_id": sourceID,
			"error":     err,
		}).Error("Failed to mark source as failed")
	}
}

// GetStatusManager 返回来源状态管理器实例
func (s *SourceService) GetStatusManager() *SourceStatusManager {
	return s.statusManager
}

// GetTaskQueue 返回任务队列实例
func (s *SourceService) GetTaskQueue() taskqueue.Queue {
	return s.taskQueue
}
