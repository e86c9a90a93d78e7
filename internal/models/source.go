package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SourceType 知识来源类型
type SourceType string

const (
	// SourceTypeWeb 网页来源
	SourceTypeWeb SourceType = "web"
	// SourceTypeFile 上传文件来源
	SourceTypeFile SourceType = "file"
)

// SourceStatus 来源处理状态类型
type SourceStatus string

const (
	// SourceStatusPending 来源已登记，等待处理
	SourceStatusPending SourceStatus = "pending"
	// SourceStatusProcessing 来源处理中
	SourceStatusProcessing SourceStatus = "processing"
	// SourceStatusCompleted 来源处理完成
	SourceStatusCompleted SourceStatus = "completed"
	// SourceStatusFailed 来源处理失败
	SourceStatusFailed SourceStatus = "failed"
)

// ProcessStage 来源处理阶段
type ProcessStage string

const (
	// StageFetching 抓取阶段（仅网页来源）
	StageFetching ProcessStage = "fetching"
	// StageParsing 解析阶段
	StageParsing ProcessStage = "parsing"
	// StageChunking 分块阶段
	StageChunking ProcessStage = "chunking"
	// StageVectorizing 向量化阶段
	StageVectorizing ProcessStage = "vectorizing"
	// StageCompleted 处理完成
	StageCompleted ProcessStage = "completed"
)

// Source 知识来源数据模型
// 一条记录对应一个已入库的网页或上传文件
type Source struct {
	ID            string         `gorm:"primaryKey"`         // 来源ID，主键
	Type          SourceType     `gorm:"not null;index"`     // 来源类型
	Title         string         `gorm:""`                   // 标题（网页title或文件名）
	URL           string         `gorm:"index"`              // 网页URL（仅网页来源）
	FileName      string         `gorm:""`                   // 文件名（仅文件来源）
	FilePath      string         `gorm:""`                   // 存储路径（仅文件来源）
	FileSize      int64          `gorm:"default:0"`          // 文件大小（字节）
	ContentType   string         `gorm:"size:100"`           // 内容类型
	Status        SourceStatus   `gorm:"not null;index"`     // 处理状态
	CreatedAt     time.Time      `gorm:"not null;index"`     // 登记时间
	ProcessedAt   *time.Time     `gorm:"index"`              // 处理完成时间
	UpdatedAt     time.Time      `gorm:"not null;index"`     // 更新时间
	Progress      int            `gorm:"not null;default:0"` // 处理进度（0-100）
	Error         string         `gorm:"type:text"`          // 错误信息
	SegmentCount  int            `gorm:"not null;default:0"` // 文本块数量
	Tags          string         `gorm:"type:varchar(255)"`  // 标签，逗号分隔
	Metadata      datatypes.JSON `gorm:"type:json"`          // 元数据，JSON格式
	CurrentStage  ProcessStage   `gorm:"size:20"`            // 当前处理阶段
	CurrentTaskID string         `gorm:"size:50;index"`      // 当前关联的任务ID
	RetryCount    int            `gorm:"default:0"`          // 重试次数
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (s *Source) BeforeCreate(tx *gorm.DB) (err error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (s *Source) BeforeUpdate(tx *gorm.DB) (err error) {
	s.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Source) TableName() string {
	return "sources"
}

// SourceSegment 来源文本块数据模型
// 用于在数据库中跟踪来源拆分出的文本块
type SourceSegment struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	SourceID  string         `gorm:"not null;index"`           // 所属来源ID
	SegmentID string         `gorm:"not null;uniqueIndex"`     // 文本块唯一ID
	Position  int            `gorm:"not null"`                 // 块位置
	Text      string         `gorm:"type:text;not null"`       // 块文本内容
	CreatedAt time.Time      `gorm:"not null"`                 // 创建时间
	UpdatedAt time.Time      `gorm:"not null"`                 // 更新时间
	Metadata  datatypes.JSON `gorm:"type:json"`                // 块元数据
	TaskID    string         `gorm:"size:50;index"`            // 处理此块的任务ID
	VectorID  string         `gorm:"size:50"`                  // 向量数据库中的ID
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (ss *SourceSegment) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	ss.CreatedAt = now
	ss.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (ss *SourceSegment) BeforeUpdate(tx *gorm.DB) (err error) {
	ss.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (SourceSegment) TableName() string {
	return "source_segments"
}

// SourceTask 来源任务关联模型
// 用于跟踪来源处理任务
type SourceTask struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	SourceID  string         `gorm:"not null;index"`           // 来源ID
	TaskID    string         `gorm:"not null;uniqueIndex"`     // 任务ID
	TaskType  string         `gorm:"not null;size:50"`         // 任务类型
	Status    string         `gorm:"not null;size:20"`         // 任务状态
	CreatedAt time.Time      `gorm:"not null"`                 // 创建时间
	UpdatedAt time.Time      `gorm:"not null"`                 // 更新时间
	StartedAt *time.Time     `gorm:""`                         // 开始时间
	EndedAt   *time.Time     `gorm:""`                         // 结束时间
	Error     string         `gorm:"type:text"`                // 错误信息
	Result    datatypes.JSON `gorm:"type:json"`                // 任务结果
	Retries   int            `gorm:"default:0"`                // 重试次数
	Progress  int            `gorm:"default:0"`                // 进度（0-100）
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (st *SourceTask) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	st.CreatedAt = now
	st.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (st *SourceTask) BeforeUpdate(tx *gorm.DB) (err error) {
	st.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (SourceTask) TableName() string {
	return "source_tasks"
}
