package repository

import "github.com/mzhao/webqa-system/internal/models"

// SourceRepository 来源仓储接口
// 负责来源元数据的存储和检索
type SourceRepository interface {
	// Create 创建来源记录
	Create(src *models.Source) error

	// Update 更新来源记录
	Update(src *models.Source) error

	// GetByID 根据ID获取来源
	GetByID(id string) (*models.Source, error)

	// GetByURL 根据URL获取来源（仅网页来源）
	GetByURL(url string) (*models.Source, error)

	// List 列出来源列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Source, int64, error)

	// Delete 删除来源
	Delete(id string) error

	// UpdateStatus 更新来源状态
	UpdateStatus(id string, status models.SourceStatus, errorMsg string) error

	// UpdateProgress 更新来源处理进度
	UpdateProgress(id string, progress int) error

	// SaveSegment 保存来源文本块
	SaveSegment(segment *models.SourceSegment) error

	// SaveSegments 批量保存来源文本块
	SaveSegments(segments []*models.SourceSegment) error

	// GetSegments 获取来源的所有文本块
	GetSegments(sourceID string) ([]*models.SourceSegment, error)

	// CountSegments 统计来源的文本块数量
	CountSegments(sourceID string) (int, error)

	// DeleteSegments 删除来源的所有文本块
	DeleteSegments(sourceID string) error
}
