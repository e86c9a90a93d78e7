package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder 测试用的嵌入客户端
// 向量的首个分量编码文本长度，方便校验顺序
type stubEmbedder struct {
	mu        sync.Mutex
	calls     int
	batchSize int
	failOn    string
}

func (c *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	if len(texts) > c.batchSize {
		c.batchSize = len(texts)
	}
	c.mu.Unlock()

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if c.failOn != "" && text == c.failOn {
			return nil, errors.New("embedding failed for " + text)
		}
		vectors[i] = []float32{float32(len([]rune(text))), 0, 0}
	}
	return vectors, nil
}

func (c *stubEmbedder) Name() string { return "stub" }

// TestBatchProcessorKeepsOrder 测试结果保持输入顺序
func TestBatchProcessorKeepsOrder(t *testing.T) {
	client := &stubEmbedder{}
	processor := NewBatchProcessor(client, 3, 4)

	texts := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		// 文本长度递增，向量首分量应同样递增
		texts = append(texts, fmt.Sprintf("%0*d", i+1, 0))
	}

	vectors, err := processor.Process(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 10)

	for i, vector := range vectors {
		require.NotNil(t, vector, "vector %d", i)
		assert.Equal(t, float32(i+1), vector[0])
	}

	// 10条文本、批大小3，应拆成4个批次
	assert.Equal(t, 4, client.calls)
	assert.LessOrEqual(t, client.batchSize, 3)
}

// TestBatchProcessorSkipsEmptyTexts 测试空文本不参与请求
func TestBatchProcessorSkipsEmptyTexts(t *testing.T) {
	client := &stubEmbedder{}
	processor := NewBatchProcessor(client, 16, 2)

	vectors, err := processor.Process(context.Background(), []string{"第一条", "", "第三条"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.NotNil(t, vectors[0])
	assert.Nil(t, vectors[1])
	assert.NotNil(t, vectors[2])
	assert.Equal(t, float32(3), vectors[0][0])
	assert.Equal(t, float32(3), vectors[2][0])
}

// TestBatchProcessorEmptyInput 测试空输入
func TestBatchProcessorEmptyInput(t *testing.T) {
	processor := NewBatchProcessor(&stubEmbedder{}, 16, 2)

	vectors, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)

	// 全部为空文本时不发起任何请求
	client := &stubEmbedder{}
	processor = NewBatchProcessor(client, 16, 2)
	vectors, err = processor.Process(context.Background(), []string{"", ""})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 0, client.calls)
}

// TestBatchProcessorPropagatesError 测试批次失败时返回错误
func TestBatchProcessorPropagatesError(t *testing.T) {
	client := &stubEmbedder{failOn: "坏文本"}
	processor := NewBatchProcessor(client, 2, 2)

	_, err := processor.Process(context.Background(), []string{"正常", "坏文本", "正常"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding failed")
}

// TestBatchProcessorDefaults 测试非法参数回退默认值
func TestBatchProcessorDefaults(t *testing.T) {
	processor := NewBatchProcessor(&stubEmbedder{}, 0, 0)
	assert.Equal(t, 16, processor.batchSize)
	assert.Equal(t, 4, processor.maxWorkers)
}

// TestSplitIntoBatches 测试批次拆分
func TestSplitIntoBatches(t *testing.T) {
	batches := splitIntoBatches([]string{"a", "b", "c", "d", "e"}, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"e"}, batches[2])

	assert.Nil(t, splitIntoBatches(nil, 2))
}

// TestNewEmbeddingClientUnknownProvider 测试未注册的客户端类型
func TestNewEmbeddingClientUnknownProvider(t *testing.T) {
	_, err := NewClient("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
