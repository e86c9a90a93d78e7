package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI嵌入向量客户端
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	config *Config        // 客户端配置
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "OpenAI API key is required")
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

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > c.config.BatchSize {
		return nil, ErrBatchTooLarge
	}
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
	}

	return c.request(ctx, texts)
}

// request 发送嵌入请求，带速率限制重试
func (c *OpenAIClient) request(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.config.Model),
	}
	if c.config.Dimensions > 0 {
		req.Dimensions = c.config.Dimensions
	}

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err := c.client.CreateEmbeddings(timeoutCtx, req)
		cancel()

		if err == nil {
			if len(resp.Data) != len(texts) {
				return nil, NewEmbeddingError(ErrCodeServerError, "embedding count does not match input count")
			}
			vectors := make([][]float32, len(resp.Data))
			for i, d := range resp.Data {
				vectors[i] = d.Embedding
			}
			return vectors, nil
		}

		lastErr = err
		if !isRateLimitError(err) {
			return nil, NewEmbeddingError(ErrCodeServerError, "embedding API error: "+err.Error())
		}

		// 速率限制错误，指数退避后重试
		select {
		case <-ctx.Done():
			return nil, NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}

	return nil, NewEmbeddingError(ErrCodeRateLimited, "rate limit retries exhausted: "+lastErr.Error())
}

// isRateLimitError 判断是否为速率限制错误
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429")
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
