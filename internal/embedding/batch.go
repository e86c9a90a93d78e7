package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 将大量文本按批大小拆分后并行向量化，结果保持输入顺序
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作协程数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// batchResult 单个批次的处理结果
type batchResult struct {
	index   int         // 批次序号
	vectors [][]float32 // 该批次的向量
	err     error       // 处理错误
}

// Process 并行处理一批文本
// 空文本对应的结果位置为nil向量，不参与请求
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// 过滤空文本并记录原始位置
	filtered := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if text != "" {
			filtered = append(filtered, text)
			positions = append(positions, i)
		}
	}

	results := make([][]float32, len(texts))
	if len(filtered) == 0 {
		return results, nil
	}

	batches := splitIntoBatches(filtered, p.batchSize)

	wp := workerpool.New(p.maxWorkers)
	var mu sync.Mutex
	batchResults := make([]batchResult, len(batches))

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			vectors, err := p.client.EmbedBatch(ctx, batch)
			mu.Lock()
			batchResults[i] = batchResult{index: i, vectors: vectors, err: err}
			mu.Unlock()
		})
	}
	wp.StopWait()

	// 按原始顺序回填结果
	pos := 0
	for _, br := range batchResults {
		if br.err != nil {
			return nil, fmt.Errorf("batch %d failed: %w", br.index, br.err)
		}
		for _, vector := range br.vectors {
			results[positions[pos]] = vector
			pos++
		}
	}

	return results, nil
}

// splitIntoBatches 将文本列表按批大小拆分
func splitIntoBatches(texts []string, batchSize int) [][]string {
	var batches [][]string
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
