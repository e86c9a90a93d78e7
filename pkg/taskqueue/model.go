package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskWebCrawl 站点爬取任务，从入口URL递归抓取同域页面
	TaskWebCrawl TaskType = "web_crawl"
	// TaskWebPageIngest 单个网页入库任务
	TaskWebPageIngest TaskType = "webpage_ingest"
	// TaskFileIngest 上传文件入库任务
	TaskFileIngest TaskType = "file_ingest"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	SourceID    string          `json:"source_id"`    // 关联的来源ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据，不同任务类型对应不同结构
	Result      json.RawMessage `json:"result"`       // 任务结果数据，不同任务类型对应不同结构
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// WebCrawlPayload 站点爬取任务载荷
type WebCrawlPayload struct {
	BaseURL    string            `json:"base_url"`    // 爬取入口URL
	MaxDepth   int               `json:"max_depth"`   // 最大爬取深度
	RateLimit  float64           `json:"rate_limit"`  // 每秒请求数限制
	ChunkSize  int               `json:"chunk_size"`  // 分块大小
	Overlap    int               `json:"overlap"`     // 重叠大小
	SplitType  string            `json:"split_type"`  // 分割类型: recursive, paragraph, sentence, length
	EmbedModel string            `json:"embed_model"` // 嵌入模型名称
	Metadata   map[string]string `json:"metadata"`    // 元数据
}

// WebCrawlResult 站点爬取任务结果
type WebCrawlResult struct {
	BaseURL   string   `json:"base_url"`   // 爬取入口URL
	PageCount int      `json:"page_count"` // 成功入库的页面数
	SourceIDs []string `json:"source_ids"` // 生成的来源ID列表
	Error     string   `json:"error"`      // 错误信息（如果有）
}

// WebPageIngestPayload 单个网页入库任务载荷
type WebPageIngestPayload struct {
	URL        string            `json:"url"`         // 网页URL
	ChunkSize  int               `json:"chunk_size"`  // 分块大小
	Overlap    int               `json:"overlap"`     // 重叠大小
	SplitType  string            `json:"split_type"`  // 分割类型
	EmbedModel string            `json:"embed_model"` // 嵌入模型名称
	Metadata   map[string]string `json:"metadata"`    // 元数据
}

// FileIngestPayload 上传文件入库任务载荷
type FileIngestPayload struct {
	FilePath    string            `json:"file_path"`    // 文件存储路径
	FileName    string            `json:"file_name"`    // 文件名
	ContentType string            `json:"content_type"` // 内容类型
	ChunkSize   int               `json:"chunk_size"`   // 分块大小
	Overlap     int               `json:"overlap"`      // 重叠大小
	SplitType   string            `json:"split_type"`   // 分割类型
	EmbedModel  string            `json:"embed_model"`  // 嵌入模型名称
	Metadata    map[string]string `json:"metadata"`     // 元数据
}

// IngestResult 入库任务结果
// 网页和文件入库任务共用
type IngestResult struct {
	SourceID    string `json:"source_id"`    // 来源ID
	Title       string `json:"title"`        // 标题
	ChunkCount  int    `json:"chunk_count"`  // 分块数量
	VectorCount int    `json:"vector_count"` // 向量数量
	Dimension   int    `json:"dimension"`    // 向量维度
	Chars       int    `json:"chars"`        // 字符数
	Error       string `json:"error"`        // 错误信息（如果有）
}
