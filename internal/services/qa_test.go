package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzhao/webqa-system/internal/cache"
	"github.com/mzhao/webqa-system/internal/llm"
	"github.com/mzhao/webqa-system/internal/vectordb"
)

// fakeEmbedder 返回固定向量的嵌入客户端
type fakeEmbedder struct {
	vector []float32
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = e.vector
	}
	return vectors, nil
}

func (e *fakeEmbedder) Name() string {
	return "fake-embedder"
}

// fakeLLM 返回固定回答的大模型客户端，记录调用次数
type fakeLLM struct {
	answer string
	calls  int
}

func (c *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	c.calls++
	return &llm.Response{Text: c.answer, ModelName: c.Name(), FinishTime: time.Now()}, nil
}

func (c *fakeLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.GenerateOption) (*llm.Response, error) {
	c.calls++
	return &llm.Response{Text: c.answer, ModelName: c.Name(), FinishTime: time.Now()}, nil
}

func (c *fakeLLM) Stream(ctx context.Context, messages []llm.Message, fn llm.StreamFunc, options ...llm.GenerateOption) (*llm.Response, error) {
	c.calls++
	// 模拟两段增量输出
	half := len(c.answer) / 2
	if err := fn(ctx, []byte(c.answer[:half])); err != nil {
		return nil, err
	}
	if err := fn(ctx, []byte(c.answer[half:])); err != nil {
		return nil, err
	}
	return &llm.Response{Text: c.answer, ModelName: c.Name(), FinishTime: time.Now()}, nil
}

func (c *fakeLLM) Name() string {
	return "fake-llm"
}

// setupQAService 构建带内存依赖的问答服务
func setupQAService(t *testing.T, llmClient llm.Client) (*QAService, vectordb.Repository) {
	repo, err := vectordb.NewMemoryRepository(vectordb.Config{
		Type:      "memory",
		Dimension: 3,
	})
	require.NoError(t, err)

	memCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	rag := llm.NewRAG(llmClient)

	service := NewQAService(embedder, repo, llmClient, rag, memCache)
	return service, repo
}

// addTestChunk 向向量库添加一个与查询向量完全对齐的文本块
func addTestChunk(t *testing.T, repo vectordb.Repository, id, sourceID, text string) {
	err := repo.Add(vectordb.Chunk{
		ID:        id,
		SourceID:  sourceID,
		Source:    "https://example.com/" + sourceID,
		Position:  0,
		Text:      text,
		Vector:    []float32{1, 0, 0},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

// TestQAService_Answer 测试基本问答流程
func TestQAService_Answer(t *testing.T) {
	llmClient := &fakeLLM{answer: "Go是一种编译型编程语言。"}
	service, repo := setupQAService(t, llmClient)

	addTestChunk(t, repo, "chunk-1", "src-1", "Go是Google开发的编译型语言。")

	answer, refs, err := service.Answer(context.Background(), "Go是什么语言？")
	require.NoError(t, err)
	assert.Equal(t, llmClient.answer, answer)
	require.Len(t, refs, 1)
	assert.Equal(t, "src-1", refs[0].SourceID)
	assert.Equal(t, 1, llmClient.calls)
}

// TestQAService_AnswerNoResults 测试检索不到相关内容的情况
func TestQAService_AnswerNoResults(t *testing.T) {
	llmClient := &fakeLLM{answer: "不应被调用"}
	service, _ := setupQAService(t, llmClient)

	answer, refs, err := service.Answer(context.Background(), "一个没有任何内容的问题")
	require.NoError(t, err)
	assert.Equal(t, NoAnswerFound, answer)
	assert.Empty(t, refs)
	assert.Equal(t, 0, llmClient.calls)
}

// TestQAService_AnswerCached 测试问答缓存
func TestQAService_AnswerCached(t *testing.T) {
	llmClient := &fakeLLM{answer: "缓存的回答"}
	service, repo := setupQAService(t, llmClient)

	addTestChunk(t, repo, "chunk-1", "src-1", "相关的内容。")

	answer1, refs1, err := service.Answer(context.Background(), "同一个问题")
	require.NoError(t, err)

	// 第二次调用应命中缓存，不再调用大模型
	answer2, refs2, err := service.Answer(context.Background(), "同一个问题")
	require.NoError(t, err)

	assert.Equal(t, answer1, answer2)
	assert.Equal(t, len(refs1), len(refs2))
	assert.Equal(t, 1, llmClient.calls)
}

// TestQAService_AnswerWithSources 测试限定来源范围的问答
func TestQAService_AnswerWithSources(t *testing.T) {
	llmClient := &fakeLLM{answer: "限定范围的回答"}
	service, repo := setupQAService(t, llmClient)

	addTestChunk(t, repo, "chunk-1", "src-a", "来源A的内容。")
	addTestChunk(t, repo, "chunk-2", "src-b", "来源B的内容。")

	_, refs, err := service.AnswerWithSources(context.Background(), "问题", []string{"src-a"})
	require.NoError(t, err)
	require.NotEmpty(t, refs)
	for _, ref := range refs {
		assert.Equal(t, "src-a", ref.SourceID)
	}
}

// TestQAService_AnswerStream 测试流式问答
func TestQAService_AnswerStream(t *testing.T) {
	llmClient := &fakeLLM{answer: "流式生成的完整回答。"}
	service, repo := setupQAService(t, llmClient)

	addTestChunk(t, repo, "chunk-1", "src-1", "相关内容。")

	var streamed strings.Builder
	answer, refs, err := service.AnswerStream(context.Background(), "问题",
		nil, func(ctx context.Context, chunk []byte) error {
			streamed.Write(chunk)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, llmClient.answer, answer)
	assert.Equal(t, llmClient.answer, streamed.String())
	require.Len(t, refs, 1)
}

// TestQAService_AnswerStreamNoResults 测试无结果时的流式回答
func TestQAService_AnswerStreamNoResults(t *testing.T) {
	llmClient := &fakeLLM{answer: "不应被调用"}
	service, _ := setupQAService(t, llmClient)

	var streamed strings.Builder
	answer, refs, err := service.AnswerStream(context.Background(), "问题",
		nil, func(ctx context.Context, chunk []byte) error {
			streamed.Write(chunk)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, NoAnswerFound, answer)
	assert.Equal(t, NoAnswerFound, streamed.String())
	assert.Empty(t, refs)
	assert.Equal(t, 0, llmClient.calls)
}

// TestQAService_EmptyQuestion 测试空问题
func TestQAService_EmptyQuestion(t *testing.T) {
	llmClient := &fakeLLM{answer: "回答"}
	service, _ := setupQAService(t, llmClient)

	_, _, err := service.Answer(context.Background(), "")
	assert.Error(t, err)
}
