package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mzhao/webqa-system/internal/database"
	"github.com/mzhao/webqa-system/internal/models"
	"github.com/mzhao/webqa-system/pkg/taskqueue"
	"gorm.io/gorm"
)

// sourceRepository 来源仓储实现
type sourceRepository struct {
	db        *gorm.DB        // 数据库连接
	taskQueue taskqueue.Queue // 任务队列
	ctx       context.Context // 上下文，可用于事务或超时控制
}

// NewSourceRepository 创建来源仓储实例
func NewSourceRepository() SourceRepository {
	return &sourceRepository{
		db:  database.MustDB(),
		ctx: context.Background(),
	}
}

// NewSourceRepositoryWithDB 使用指定的数据库连接创建来源仓储实例
func NewSourceRepositoryWithDB(db *gorm.DB) SourceRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &sourceRepository{
		db:  db,
		ctx: context.Background(),
	}
}

// NewSourceRepositoryWithQueue 使用指定的数据库连接和任务队列创建来源仓储实例
func NewSourceRepositoryWithQueue(db *gorm.DB, queue taskqueue.Queue) SourceRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &sourceRepository{
		db:        db,
		taskQueue: queue,
		ctx:       context.Background(),
	}
}

// Create 创建来源记录
func (r *sourceRepository) Create(src *models.Source) error {
	if src.ID == "" {
		return errors.New("source ID cannot be empty")
	}

	return r.db.Create(src).Error
}

// Update 更新来源记录
func (r *sourceRepository) Update(src *models.Source) error {
	if src.ID == "" {
		return errors.New("source ID cannot be empty")
	}

	return r.db.Save(src).Error
}

// GetByID 根据ID获取来源
func (r *sourceRepository) GetByID(id string) (*models.Source, error) {
	var src models.Source
	err := r.db.Where("id = ?", id).First(&src).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("source not found: %s", id)
		}
		return nil, err
	}
	return &src, nil
}

// GetByURL 根据URL获取来源
// 用于网页去重，同一URL不重复入库
func (r *sourceRepository) GetByURL(url string) (*models.Source, error) {
	var src models.Source
	err := r.db.Where("url = ?", url).First(&src).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrSourceNotFound
		}
		return nil, err
	}
	return &src, nil
}

// List 列出来源列表，支持分页和筛选
func (r *sourceRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.Source, int64, error) {
	var sources []*models.Source
	var total int64

	query := r.db.Model(&models.Source{})

	// 应用筛选条件
	if filters != nil {
		// 状态过滤
		if status, ok := filters["status"]; ok {
			switch s := status.(type) {
			case models.SourceStatus:
				query = query.Where("status = ?", string(s))
			case string:
				if s != "" {
					query = query.Where("status = ?", s)
				}
			default:
				statusStr := fmt.Sprintf("%v", status)
				if statusStr != "" {
					query = query.Where("status = ?", statusStr)
				}
			}
		}

		// 来源类型过滤
		if srcType, ok := filters["type"].(string); ok && srcType != "" {
			query = query.Where("type = ?", srcType)
		}

		// 标签过滤
		if tags, ok := filters["tags"].(string); ok && tags != "" {
			query = query.Where("tags LIKE ?", "%"+tags+"%")
		}

		// 时间范围过滤
		if startTime, ok := filters["start_time"].(string); ok && startTime != "" {
			query = query.Where("created_at >= ?", startTime)
		}

		if endTime, ok := filters["end_time"].(string); ok && endTime != "" {
			query = query.Where("created_at <= ?", endTime)
		}

		// 标题/URL关键词过滤
		if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
			query = query.Where("title LIKE ? OR url LIKE ?", "%"+keyword+"%", "%"+keyword+"%")
		}
	}

	// 获取总数
	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	// 应用排序、分页并执行查询
	err = query.Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&sources).Error

	if err != nil {
		return nil, 0, err
	}

	return sources, total, nil
}

// Delete 删除来源记录
func (r *sourceRepository) Delete(id string) error {
	// 开启事务
	return r.db.Transaction(func(tx *gorm.DB) error {
		// 1. 删除来源文本块
		if err := tx.Where("source_id = ?", id).Delete(&models.SourceSegment{}).Error; err != nil {
			return err
		}

		// 2. 删除来源记录
		if err := tx.Where("id = ?", id).Delete(&models.Source{}).Error; err != nil {
			return err
		}

		// 3. 如果任务队列已初始化，尝试获取并删除相关任务
		if r.taskQueue != nil {
			ctx := r.getContext()
			tasks, err := r.taskQueue.GetTasksBySource(ctx, id)
			if err == nil && len(tasks) > 0 {
				for _, task := range tasks {
					// 忽略错误，任务可能已经被删除
					_ = r.taskQueue.DeleteTask(ctx, task.ID)
				}
			}
		}

		return nil
	})
}

// UpdateStatus 更新来源状态
func (r *sourceRepository) UpdateStatus(id string, status models.SourceStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	// 如果状态是已完成或失败，设置处理完成时间
	if status == models.SourceStatusCompleted || status == models.SourceStatusFailed {
		now := time.Now()
		updates["processed_at"] = &now
	}

	return r.db.Model(&models.Source{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateProgress 更新来源处理进度
func (r *sourceRepository) UpdateProgress(id string, progress int) error {
	// 确保进度在0-100范围内
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return r.db.Model(&models.Source{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}

// SaveSegment 保存来源文本块
func (r *sourceRepository) SaveSegment(segment *models.SourceSegment) error {
	return r.db.Create(segment).Error
}

// SaveSegments 批量保存文本块
func (r *sourceRepository) SaveSegments(segments []*models.SourceSegment) error {
	if len(segments) == 0 {
		return nil
	}

	// 使用事务批量插入
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(segments, 100).Error
	})
}

// GetSegments 获取来源的所有文本块
func (r *sourceRepository) GetSegments(sourceID string) ([]*models.SourceSegment, error) {
	var segments []*models.SourceSegment
	err := r.db.Where("source_id = ?", sourceID).
		Order("position ASC").
		Find(&segments).Error
	return segments, err
}

// CountSegments 统计来源的文本块数量
func (r *sourceRepository) CountSegments(sourceID string) (int, error) {
	var count int64
	err := r.db.Model(&models.SourceSegment{}).
		Where("source_id = ?", sourceID).
		Count(&count).Error
	return int(count), err
}

// DeleteSegments 删除来源的所有文本块
func (r *sourceRepository) DeleteSegments(sourceID string) error {
	return r.db.Where("source_id = ?", sourceID).
		Delete(&models.SourceSegment{}).Error
}

// WithContext 创建带有上下文的仓储
func (r *sourceRepository) WithContext(ctx context.Context) SourceRepository {
	return &sourceRepository{
		db:        r.db.WithContext(ctx),
		taskQueue: r.taskQueue,
		ctx:       ctx,
	}
}

// getContext 获取仓储的上下文，如果未设置则使用背景上下文
func (r *sourceRepository) getContext() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}
