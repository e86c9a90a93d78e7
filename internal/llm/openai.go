package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI聊天模型客户端实现
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	config *Config        // 客户端配置
}

// NewOpenAIClient 创建新的OpenAI聊天模型客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Generate 根据提示词生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	messages := []Message{{Role: RoleUser, Content: prompt}}
	return c.Chat(ctx, messages, options...)
}

// Chat 进行多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}

	req := c.buildRequest(messages, options...)

	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(timeoutCtx, req)
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeServerError, "empty response from API")
	}

	return &Response{
		Text:       resp.Choices[0].Message.Content,
		TokenCount: resp.Usage.TotalTokens,
		ModelName:  c.config.Model,
		FinishTime: time.Now(),
	}, nil
}

// Stream 流式生成回答
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, fn StreamFunc, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}
	if fn == nil {
		return nil, NewLLMError(ErrCodeInvalidRequest, "stream callback cannot be nil")
	}

	req := c.buildRequest(messages, options...)
	req.Stream = true

	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	stream, err := c.client.CreateChatCompletionStream(timeoutCtx, req)
	if err != nil {
		return nil, c.wrapError(err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, c.wrapError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)

		if err := fn(timeoutCtx, []byte(delta)); err != nil {
			return nil, NewLLMError(ErrCodeStreamAborted, "stream callback aborted: "+err.Error())
		}
	}

	return &Response{
		Text:       full.String(),
		ModelName:  c.config.Model,
		FinishTime: time.Now(),
	}, nil
}

// buildRequest 构建聊天补全请求
func (c *OpenAIClient) buildRequest(messages []Message, options ...GenerateOption) openai.ChatCompletionRequest {
	maxTokens, temperature, topP := applyGenerateOptions(c.config, options...)

	apiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		apiMessages[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	return openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    apiMessages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}
}

// wrapError 将SDK错误转换为统一的LLMError
func (c *OpenAIClient) wrapError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return NewLLMError(ErrCodeRateLimited, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return NewLLMError(ErrCodeTimeout, err.Error())
	default:
		return NewLLMError(ErrCodeServerError, err.Error())
	}
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
