package model

import (
	"strings"
	"time"

	"github.com/mzhao/webqa-system/internal/models"
)

// Response 统一API响应结构
type Response struct {
	Code    int         `json:"code"`               // 业务状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据
	TraceID string      `json:"trace_id,omitempty"` // 请求追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) Response {
	return Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) Response {
	return Response{
		Code:    code,
		Message: message,
	}
}

// SourceUploadResponse 文件上传响应
type SourceUploadResponse struct {
	SourceID string `json:"source_id"` // 新建来源ID
	FileName string `json:"file_name"` // 原始文件名
	Status   string `json:"status"`    // 初始状态
}

// WebIngestResponse 网页入库响应
type WebIngestResponse struct {
	SourceID string `json:"source_id"` // 来源ID
	URL      string `json:"url"`       // 页面URL
	Status   string `json:"status"`    // 初始状态
	Existed  bool   `json:"existed"`   // 是否为已存在的来源
}

// CrawlResponse 站点爬取响应
type CrawlResponse struct {
	TaskID    string   `json:"task_id,omitempty"`    // 异步爬取任务ID
	SourceIDs []string `json:"source_ids,omitempty"` // 同步模式下入库的来源ID
	BaseURL   string   `json:"base_url"`             // 起始URL
	MaxDepth  int      `json:"max_depth"`            // 爬取深度
}

// SourceStatusResponse 来源状态查询响应
type SourceStatusResponse struct {
	SourceID     string `json:"source_id"`              // 来源ID
	Status       string `json:"status"`                 // 处理状态
	Progress     int    `json:"progress"`               // 处理进度（0-100）
	Stage        string `json:"stage,omitempty"`        // 当前处理阶段
	SegmentCount int    `json:"segment_count"`          // 文本块数量
	Error        string `json:"error,omitempty"`        // 错误信息
	ProcessedAt  string `json:"processed_at,omitempty"` // 处理完成时间
}

// SourceInfo 来源信息
type SourceInfo struct {
	SourceID     string   `json:"source_id"`            // 来源ID
	Type         string   `json:"type"`                 // 来源类型
	Title        string   `json:"title"`                // 标题
	URL          string   `json:"url,omitempty"`        // 网页URL
	FileName     string   `json:"file_name,omitempty"`  // 文件名
	FileSize     int64    `json:"file_size,omitempty"`  // 文件大小
	Status       string   `json:"status"`               // 处理状态
	Progress     int      `json:"progress"`             // 处理进度
	SegmentCount int      `json:"segment_count"`        // 文本块数量
	Tags         []string `json:"tags,omitempty"`       // 标签
	CreatedAt    string   `json:"created_at"`           // 登记时间
	UpdatedAt    string   `json:"updated_at"`           // 更新时间
	Error        string   `json:"error,omitempty"`      // 错误信息
}

// SourceListResponse 来源列表响应
type SourceListResponse struct {
	Total    int64        `json:"total"`     // 总数
	Page     int          `json:"page"`      // 当前页码
	PageSize int          `json:"page_size"` // 每页数量
	Sources  []SourceInfo `json:"sources"`   // 来源列表
}

// SourceDeleteResponse 来源删除响应
type SourceDeleteResponse struct {
	SourceID string `json:"source_id"` // 已删除的来源ID
	Deleted  bool   `json:"deleted"`   // 删除结果
}

// QASourceInfo 问答引用的来源信息
type QASourceInfo struct {
	SourceID string  `json:"source_id"`       // 来源ID
	Source   string  `json:"source"`          // 来源URL或文件名
	Position int     `json:"position"`        // 文本块位置
	Text     string  `json:"text"`            // 引用文本
	Score    float32 `json:"score,omitempty"` // 匹配分数
}

// QAResponse 问答响应
type QAResponse struct {
	Question  string         `json:"question"`             // 原始问题
	Answer    string         `json:"answer"`               // 回答内容
	Sources   []QASourceInfo `json:"sources,omitempty"`    // 引用来源
	SessionID string         `json:"session_id,omitempty"` // 关联会话ID
}

// ConvertToSourceInfo 将内部来源模型转换为API响应格式
func ConvertToSourceInfo(src *models.Source) SourceInfo {
	info := SourceInfo{
		SourceID:     src.ID,
		Type:         string(src.Type),
		Title:        src.Title,
		URL:          src.URL,
		FileName:     src.FileName,
		FileSize:     src.FileSize,
		Status:       string(src.Status),
		Progress:     src.Progress,
		SegmentCount: src.SegmentCount,
		CreatedAt:    src.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    src.UpdatedAt.Format(time.RFC3339),
		Error:        src.Error,
	}

	if src.Tags != "" {
		info.Tags = strings.Split(src.Tags, ",")
	}

	return info
}

// ConvertToQASources 将检索引用转换为API响应格式
func ConvertToQASources(refs []models.SourceRef) []QASourceInfo {
	if len(refs) == 0 {
		return nil
	}

	sources := make([]QASourceInfo, 0, len(refs))
	for _, ref := range refs {
		sources = append(sources, QASourceInfo{
			SourceID: ref.SourceID,
			Source:   ref.Source,
			Position: ref.Position,
			Text:     ref.Text,
			Score:    ref.Score,
		})
	}
	return sources
}
