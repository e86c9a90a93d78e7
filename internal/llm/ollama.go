package llm

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// defaultOllamaURL 本地Ollama服务的默认地址
const defaultOllamaURL = "http://localhost:11434"

// OllamaClient 基于本地Ollama服务的聊天模型客户端
// 通过langchaingo与Ollama交互，用于本地部署场景
type OllamaClient struct {
	llm    *ollama.LLM // langchaingo的Ollama客户端
	config *Config     // 客户端配置
}

// NewOllamaClient 创建新的Ollama聊天模型客户端
func NewOllamaClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.Model == "" || cfg.Model == DefaultConfig().Model {
		cfg.Model = ModelLlama3
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}

	llmClient, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, NewLLMError(ErrCodeNetworkError, "failed to initialize ollama client: "+err.Error())
	}

	return &OllamaClient{
		llm:    llmClient,
		config: cfg,
	}, nil
}

// Name 返回模型名称
func (c *OllamaClient) Name() string {
	return c.config.Model
}

// Generate 根据提示词生成回答
func (c *OllamaClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	messages := []Message{{Role: RoleUser, Content: prompt}}
	return c.Chat(ctx, messages, options...)
}

// Chat 进行多轮对话
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	return c.generate(ctx, messages, nil, options...)
}

// Stream 流式生成回答
func (c *OllamaClient) Stream(ctx context.Context, messages []Message, fn StreamFunc, options ...GenerateOption) (*Response, error) {
	if fn == nil {
		return nil, NewLLMError(ErrCodeInvalidRequest, "stream callback cannot be nil")
	}
	return c.generate(ctx, messages, fn, options...)
}

// generate 调用Ollama生成内容，fn非nil时启用流式输出
func (c *OllamaClient) generate(ctx context.Context, messages []Message, fn StreamFunc, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}

	maxTokens, temperature, topP := applyGenerateOptions(c.config, options...)

	content := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		content[i] = llms.TextParts(toChatMessageType(m.Role), m.Content)
	}

	callOpts := []llms.CallOption{
		llms.WithMaxTokens(maxTokens),
		llms.WithTemperature(float64(temperature)),
		llms.WithTopP(float64(topP)),
	}
	if fn != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return fn(ctx, chunk)
		}))
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.llm.GenerateContent(timeoutCtx, content, callOpts...)
	if err != nil {
		return nil, NewLLMError(ErrCodeServerError, "ollama generation error: "+err.Error())
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeServerError, "empty response from ollama")
	}

	return &Response{
		Text:       resp.Choices[0].Content,
		ModelName:  c.config.Model,
		FinishTime: time.Now(),
	}, nil
}

// toChatMessageType 将内部角色映射为langchaingo的消息类型
func toChatMessageType(role MessageRole) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// 在包初始化时注册Ollama客户端
func init() {
	RegisterClient("ollama", NewOllamaClient)
}
