package embedding

import (
	"context"

	"github.com/tmc/langchaingo/llms/ollama"
)

// defaultOllamaURL 本地Ollama服务的默认地址
const defaultOllamaURL = "http://localhost:11434"

// defaultOllamaEmbedModel 默认的本地嵌入模型
const defaultOllamaEmbedModel = "nomic-embed-text"

// OllamaClient 基于本地Ollama服务的嵌入客户端
// 用于无需外部API的本地部署场景
type OllamaClient struct {
	llm    *ollama.LLM // langchaingo的Ollama客户端
	config *Config     // 客户端配置
}

// NewOllamaClient 创建一个新的Ollama嵌入客户端
func NewOllamaClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.Model == "" || cfg.Model == DefaultConfig().Model {
		cfg.Model = defaultOllamaEmbedModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}

	llm, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeNetworkError, "failed to initialize ollama client: "+err.Error())
	}

	return &OllamaClient{
		llm:    llm,
		config: cfg,
	}, nil
}

// Name 返回模型名称
func (c *OllamaClient) Name() string {
	return c.config.Model
}

// Embed 对单个文本生成嵌入向量
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	vectors, err := c.llm.CreateEmbedding(timeoutCtx, texts)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeServerError, "ollama embedding error: "+err.Error())
	}
	if len(vectors) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeServerError, "embedding count does not match input count")
	}

	return vectors, nil
}

// 在包初始化时注册Ollama客户端
func init() {
	RegisterClient("ollama", NewOllamaClient)
}
