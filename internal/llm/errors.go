package llm

import "fmt"

// LLMError 大模型错误类型
type LLMError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 2001 // 无效的API密钥
	ErrCodeInvalidRequest = 2002 // 无效的请求
	ErrCodeNetworkError   = 2003 // 网络连接错误
	ErrCodeRateLimited    = 2004 // 请求频率超限
	ErrCodeServerError    = 2005 // 服务器错误
	ErrCodeTimeout        = 2006 // 请求超时
	ErrCodeEmptyPrompt    = 2007 // 提示词为空
	ErrCodeStreamAborted  = 2008 // 流式输出被中止
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey = "invalid API key"
	ErrMsgEmptyPrompt   = "prompt cannot be empty"
)

// NewLLMError 创建新的大模型错误
func NewLLMError(code int, message string) LLMError {
	return LLMError{
		Code:    code,
		Message: message,
	}
}
