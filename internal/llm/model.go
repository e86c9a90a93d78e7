package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// Response 统一的响应结构
type Response struct {
	Text       string    // 生成的文本
	TokenCount int       // 使用的token数（部分后端不提供，为0）
	ModelName  string    // 使用的模型名称
	FinishTime time.Time // 完成时间
}

// RAGResponse 检索增强生成的响应结构
type RAGResponse struct {
	Answer  string            // 回答内容
	Sources []SourceReference // 引用来源
}

// SourceReference 引用来源
type SourceReference struct {
	ID       string                 // 文本块ID
	SourceID string                 // 来源文档ID
	Source   string                 // 来源URL或文件名
	Content  string                 // 引用内容
	Score    float32                // 检索相似度分数
	Metadata map[string]interface{} // 元数据
}

// 常用模型名称
const (
	ModelGPT4o     = "gpt-4o"      // OpenAI GPT-4o
	ModelGPT4oMini = "gpt-4o-mini" // OpenAI GPT-4o-mini（默认）
	ModelLlama3    = "llama3"      // Ollama本地Llama3
	ModelMistral   = "mistral"     // Ollama本地Mistral
)
