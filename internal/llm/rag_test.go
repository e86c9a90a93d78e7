package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient 测试用的大模型客户端
type stubClient struct {
	answer     string
	err        error
	lastPrompt string
	maxTokens  int
}

func (c *stubClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.lastPrompt = prompt
	c.maxTokens, _, _ = applyGenerateOptions(DefaultConfig(), options...)
	return &Response{Text: c.answer, ModelName: "stub", FinishTime: time.Now()}, nil
}

func (c *stubClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &Response{Text: c.answer, ModelName: "stub"}, nil
}

func (c *stubClient) Stream(ctx context.Context, messages []Message, fn StreamFunc, options ...GenerateOption) (*Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(messages) > 0 {
		c.lastPrompt = messages[len(messages)-1].Content
	}

	// 将回答拆成两段模拟增量输出
	runes := []rune(c.answer)
	half := len(runes) / 2
	for _, part := range []string{string(runes[:half]), string(runes[half:])} {
		if part == "" {
			continue
		}
		if err := fn(ctx, []byte(part)); err != nil {
			return nil, err
		}
	}

	return &Response{Text: c.answer, ModelName: "stub"}, nil
}

func (c *stubClient) Name() string { return "stub" }

// TestRAGAnswer 测试基于上下文生成回答
func TestRAGAnswer(t *testing.T) {
	client := &stubClient{answer: "这是生成的回答。"}
	rag := NewRAG(client)

	resp, err := rag.Answer(context.Background(), "什么是向量检索？", []string{"第一段上下文", "第二段上下文"})
	require.NoError(t, err)
	assert.Equal(t, "这是生成的回答。", resp.Answer)

	// 默认配置附带引用来源
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "src-1", resp.Sources[0].ID)
	assert.Equal(t, "第一段上下文", resp.Sources[0].Content)

	// 提示词包含问题和编号后的上下文
	assert.Contains(t, client.lastPrompt, "什么是向量检索？")
	assert.Contains(t, client.lastPrompt, "【1】第一段上下文")
	assert.Contains(t, client.lastPrompt, "【2】第二段上下文")
	assert.NotContains(t, client.lastPrompt, "{{.Question}}")
	assert.NotContains(t, client.lastPrompt, "{{.Context}}")
}

// TestRAGAnswerEmptyQuestion 测试空问题被拒绝
func TestRAGAnswerEmptyQuestion(t *testing.T) {
	rag := NewRAG(&stubClient{answer: "回答"})

	_, err := rag.Answer(context.Background(), "", []string{"上下文"})
	require.Error(t, err)

	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
}

// TestRAGAnswerClientError 测试客户端错误透传
func TestRAGAnswerClientError(t *testing.T) {
	rag := NewRAG(&stubClient{err: errors.New("upstream unavailable")})

	_, err := rag.Answer(context.Background(), "问题", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate response")
}

// TestRAGAnswerOptions 测试RAG配置选项
func TestRAGAnswerOptions(t *testing.T) {
	client := &stubClient{answer: "回答"}
	rag := NewRAG(client,
		WithRAGMaxTokens(512),
		WithRAGTemperature(0.2),
		WithRAGTimeout(time.Minute),
		WithSources(false),
	)

	resp, err := rag.Answer(context.Background(), "问题", []string{"上下文"})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 512, client.maxTokens)
}

// TestRAGCustomTemplate 测试自定义提示词模板
func TestRAGCustomTemplate(t *testing.T) {
	client := &stubClient{answer: "回答"}
	rag := NewRAG(client, WithTemplate("Q: {{.Question}}\nC: {{.Context}}"))

	_, err := rag.Answer(context.Background(), "自定义问题", []string{"自定义上下文"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(client.lastPrompt, "Q: 自定义问题"))
	assert.Contains(t, client.lastPrompt, "【1】自定义上下文")
}

// TestRAGDeepThinking 测试深度思考模板
func TestRAGDeepThinking(t *testing.T) {
	client := &stubClient{answer: "回答"}
	rag := NewRAG(client, WithDeepThinking())

	_, err := rag.Answer(context.Background(), "问题", []string{"上下文"})
	require.NoError(t, err)
	assert.Contains(t, client.lastPrompt, "思考过程")
}

// TestRAGSetTemplate 测试运行时替换模板
func TestRAGSetTemplate(t *testing.T) {
	client := &stubClient{answer: "回答"}
	rag := NewRAG(client)
	rag.SetTemplate("只回答: {{.Question}}")

	_, err := rag.Answer(context.Background(), "替换后的问题", nil)
	require.NoError(t, err)
	assert.Equal(t, "只回答: 替换后的问题", client.lastPrompt)
}

// TestRAGAnswerStream 测试流式生成回答
func TestRAGAnswerStream(t *testing.T) {
	client := &stubClient{answer: "这是流式回答。"}
	rag := NewRAG(client)

	var received strings.Builder
	resp, err := rag.AnswerStream(context.Background(), "问题", []string{"上下文"},
		func(ctx context.Context, chunk []byte) error {
			received.Write(chunk)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "这是流式回答。", resp.Answer)
	assert.Equal(t, "这是流式回答。", received.String())
	require.Len(t, resp.Sources, 1)
}

// TestRAGAnswerStreamNilCallback 测试缺少回调时报错
func TestRAGAnswerStreamNilCallback(t *testing.T) {
	rag := NewRAG(&stubClient{answer: "回答"})

	_, err := rag.AnswerStream(context.Background(), "问题", nil, nil)
	require.Error(t, err)

	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code)
}

// TestRAGAnswerStreamCallbackAborts 测试回调返回错误时中止
func TestRAGAnswerStreamCallbackAborts(t *testing.T) {
	rag := NewRAG(&stubClient{answer: "会被中止的回答"})

	_, err := rag.AnswerStream(context.Background(), "问题", nil,
		func(ctx context.Context, chunk []byte) error {
			return errors.New("client disconnected")
		})
	assert.Error(t, err)
}

// TestNewClientUnknownProvider 测试未注册的客户端类型
func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient("nonexistent")
	require.Error(t, err)

	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code)
}

// TestApplyGenerateOptions 测试请求级选项覆盖客户端配置
func TestApplyGenerateOptions(t *testing.T) {
	cfg := DefaultConfig()

	maxTokens, temperature, topP := applyGenerateOptions(cfg)
	assert.Equal(t, cfg.MaxTokens, maxTokens)
	assert.Equal(t, cfg.Temperature, temperature)
	assert.Equal(t, cfg.TopP, topP)

	maxTokens, temperature, topP = applyGenerateOptions(cfg,
		WithGenerateMaxTokens(64),
		WithGenerateTemperature(0.1),
		WithGenerateTopP(0.5),
	)
	assert.Equal(t, 64, maxTokens)
	assert.Equal(t, float32(0.1), temperature)
	assert.Equal(t, float32(0.5), topP)
}
