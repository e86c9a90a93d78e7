package model

import (
	"encoding/json"
	"time"

	"github.com/mzhao/webqa-system/internal/models"
)

// ChatCreateRequest 创建会话请求
type ChatCreateRequest struct {
	Title string `json:"title"` // 会话标题，为空时自动生成
}

// ChatRenameRequest 会话重命名请求
type ChatRenameRequest struct {
	Title string `json:"title" binding:"required"` // 新标题
}

// ChatIDRequest 带会话ID的请求
type ChatIDRequest struct {
	ID string `uri:"id" binding:"required"` // 会话ID
}

// ChatAskRequest 会话内提问请求
type ChatAskRequest struct {
	Question  string   `json:"question" binding:"required"` // 用户问题
	SourceIDs []string `json:"source_ids"`                  // 限定检索的来源ID
}

// ChatSessionInfo 会话信息
type ChatSessionInfo struct {
	SessionID    string `json:"session_id"`              // 会话ID
	Title        string `json:"title"`                   // 会话标题
	CreatedAt    string `json:"created_at"`              // 创建时间
	UpdatedAt    string `json:"updated_at"`              // 更新时间
	MessageCount int64  `json:"message_count,omitempty"` // 消息数量
}

// ChatSessionListResponse 会话列表响应
type ChatSessionListResponse struct {
	Total    int64             `json:"total"`     // 总数
	Page     int               `json:"page"`      // 当前页码
	PageSize int               `json:"page_size"` // 每页数量
	Sessions []ChatSessionInfo `json:"sessions"`  // 会话列表
}

// ChatMessageInfo 消息信息
type ChatMessageInfo struct {
	ID        uint           `json:"id"`                // 消息ID
	Role      string         `json:"role"`              // 消息角色
	Content   string         `json:"content"`           // 消息内容
	Sources   []QASourceInfo `json:"sources,omitempty"` // 引用来源
	CreatedAt string         `json:"created_at"`        // 创建时间
}

// ChatMessageListResponse 消息列表响应
type ChatMessageListResponse struct {
	SessionID string            `json:"session_id"` // 会话ID
	Total     int64             `json:"total"`      // 总数
	Messages  []ChatMessageInfo `json:"messages"`   // 消息列表
}

// ConvertToChatSessionInfo 将内部会话模型转换为API响应格式
func ConvertToChatSessionInfo(session *models.ChatSession) ChatSessionInfo {
	return ChatSessionInfo{
		SessionID: session.ID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt.Format(time.RFC3339),
		UpdatedAt: session.UpdatedAt.Format(time.RFC3339),
	}
}

// ConvertToChatMessageInfo 将内部消息模型转换为API响应格式
func ConvertToChatMessageInfo(message *models.ChatMessage) ChatMessageInfo {
	info := ChatMessageInfo{
		ID:        message.ID,
		Role:      string(message.Role),
		Content:   message.Content,
		CreatedAt: message.CreatedAt.Format(time.RFC3339),
	}

	if len(message.Sources) > 0 {
		var refs []models.SourceRef
		if err := json.Unmarshal(message.Sources, &refs); err == nil {
			info.Sources = ConvertToQASources(refs)
		}
	}

	return info
}
