package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mzhao/webqa-system/internal/models"
	"github.com/mzhao/webqa-system/internal/repository"
)

// SourceStatusManager 来源状态管理器
// 负责管理来源处理的生命周期状态
type SourceStatusManager struct {
	repo   repository.SourceRepository // 来源仓储接口
	logger *logrus.Logger              // 日志记录器
	mu     sync.Mutex                  // 互斥锁，保证状态转换的原子性
}

// NewSourceStatusManager 创建来源状态管理器
func NewSourceStatusManager(repo repository.SourceRepository, logger *logrus.Logger) *SourceStatusManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &SourceStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// RegisterWebSource 登记一个待处理的网页来源
func (m *SourceStatusManager) RegisterWebSource(ctx context.Context, sourceID string, pageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"url":       pageURL,
	}).Info("Registering web source")

	src := &models.Source{
		ID:        sourceID,
		Type:      models.SourceTypeWeb,
		URL:       pageURL,
		Status:    models.SourceStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Progress:  0,
	}

	return m.repo.Create(src)
}

// RegisterFileSource 登记一个待处理的上传文件来源
func (m *SourceStatusManager) RegisterFileSource(ctx context.Context, sourceID string, fileName string, filePath string, fileSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"filename":  fileName,
	}).Info("Registering file source")

	src := &models.Source{
		ID:        sourceID,
		Type:      models.SourceTypeFile,
		Title:     fileName,
		FileName:  fileName,
		FilePath:  filePath,
		FileSize:  fileSize,
		Status:    models.SourceStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Progress:  0,
	}

	return m.repo.Create(src)
}

// MarkAsProcessing 将来源标记为处理中状态
func (m *SourceStatusManager) MarkAsProcessing(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.repo.GetByID(sourceID)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}

	// 失败的来源允许重新处理
	if src.Status != models.SourceStatusPending && src.Status != models.SourceStatusFailed {
		return fmt.Errorf("invalid state transition: source %s is in %s state",
			sourceID, src.Status)
	}

	m.logger.WithField("source_id", sourceID).Info("Marking source as processing")

	return m.repo.UpdateStatus(sourceID, models.SourceStatusProcessing, "")
}

// MarkAsCompleted 将来源标记为处理完成状态
func (m *SourceStatusManager) MarkAsCompleted(ctx context.Context, sourceID string, title string, segmentCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.repo.GetByID(sourceID)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}

	if src.Status != models.SourceStatusProcessing && src.Status != models.SourceStatusPending {
		return fmt.Errorf("invalid state transition: source %s is in %s state",
			sourceID, src.Status)
	}

	m.logger.WithFields(logrus.Fields{
		"source_id":     sourceID,
		"segment_count": segmentCount,
	}).Info("Marking source as completed")

	now := time.Now()
	src.Status = models.SourceStatusCompleted
	if title != "" {
		src.Title = title
	}
	src.SegmentCount = segmentCount
	src.Progress = 100
	src.CurrentStage = models.StageCompleted
	src.ProcessedAt = &now
	src.Error = ""
	return m.repo.Update(src)
}

// MarkAsFailed 将来源标记为处理失败状态
func (m *SourceStatusManager) MarkAsFailed(ctx context.Context, sourceID string, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.repo.GetByID(sourceID); err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"error":     errorMsg,
	}).Error("Marking source as failed")

	return m.repo.UpdateStatus(sourceID, models.SourceStatusFailed, errorMsg)
}

// UpdateStage 更新来源的处理阶段和进度
func (m *SourceStatusManager) UpdateStage(ctx context.Context, sourceID string, stage models.ProcessStage, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.repo.GetByID(sourceID)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}

	if src.Status != models.SourceStatusProcessing {
		return fmt.Errorf("cannot update stage: source %s is not in processing state", sourceID)
	}

	m.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"stage":     stage,
		"progress":  progress,
	}).Debug("Updating source stage")

	src.CurrentStage = stage
	src.Progress = progress
	return m.repo.Update(src)
}

// UpdateProgress 更新来源处理进度
func (m *SourceStatusManager) UpdateProgress(ctx context.Context, sourceID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.repo.GetByID(sourceID)
	if err != nil {
		return fmt.Errorf("failed to get source: %w", err)
	}

	if src.Status != models.SourceStatusProcessing {
		return fmt.Errorf("cannot update progress: source %s is not in processing state", sourceID)
	}

	return m.repo.UpdateProgress(sourceID, progress)
}

// GetStatus 获取来源当前状态
func (m *SourceStatusManager) GetStatus(ctx context.Context, sourceID string) (models.SourceStatus, error) {
	src, err := m.repo.GetByID(sourceID)
	if err != nil {
		return "", fmt.Errorf("failed to get source status: %w", err)
	}
	return src.Status, nil
}

// GetSource 获取完整的来源对象
func (m *SourceStatusManager) GetSource(ctx context.Context, sourceID string) (*models.Source, error) {
	return m.repo.GetByID(sourceID)
}

// ListSources 获取来源列表
func (m *SourceStatusManager) ListSources(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Source, int64, error) {
	return m.repo.List(offset, limit, filters)
}

// DeleteSource 删除来源状态记录
func (m *SourceStatusManager) DeleteSource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithField("source_id", sourceID).Info("Deleting source status record")
	return m.repo.Delete(sourceID)
}
