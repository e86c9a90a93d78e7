package vectordb

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库实现
// 用于开发和测试环境的简单内存存储
type MemoryRepository struct {
	mu          sync.RWMutex        // 读写锁，确保并发安全
	dimension   int                 // 向量维度
	distType    DistanceType        // 距离计算类型
	chunks      map[string]Chunk    // 文本块存储，ID到块的映射
	sourceToIDs map[string][]string // 来源ID到块ID的映射
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	return &MemoryRepository{
		dimension:   config.Dimension,
		distType:    distType,
		chunks:      make(map[string]Chunk),
		sourceToIDs: make(map[string][]string),
	}, nil
}

// Add 添加单个文本块到内存仓库
func (r *MemoryRepository) Add(chunk Chunk) error {
	if chunk.ID == "" {
		return ErrInvalidID
	}
	if err := ValidateVector(chunk.Vector, r.dimension); err != nil {
		return err
	}

	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}
	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]interface{})
	}

	// 对于余弦距离，先对向量进行归一化处理
	if r.distType == Cosine {
		chunk.Vector = normalizeVector(chunk.Vector)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.chunks[chunk.ID] = chunk
	r.sourceToIDs[chunk.SourceID] = append(r.sourceToIDs[chunk.SourceID], chunk.ID)

	return nil
}

// AddBatch 批量添加文本块到内存仓库
func (r *MemoryRepository) AddBatch(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	// 使用单个锁进行批处理，避免多次加解锁开销
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range chunks {
		chunk := &chunks[i] // 使用指针避免复制

		if chunk.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(chunk.Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for chunk %s: %v", chunk.ID, err)
		}

		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = time.Now()
		}
		if chunk.Metadata == nil {
			chunk.Metadata = make(map[string]interface{})
		}

		if r.distType == Cosine {
			chunk.Vector = normalizeVector(chunk.Vector)
		}

		r.chunks[chunk.ID] = *chunk
		r.sourceToIDs[chunk.SourceID] = append(r.sourceToIDs[chunk.SourceID], chunk.ID)
	}

	return nil
}

// Get 获取单个文本块
func (r *MemoryRepository) Get(id string) (Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chunk, exists := r.chunks[id]
	if !exists {
		return Chunk{}, ErrChunkNotFound
	}

	return chunk, nil
}

// Delete 删除单个文本块
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunk, exists := r.chunks[id]
	if !exists {
		return ErrChunkNotFound
	}

	delete(r.chunks, id)

	// 更新来源到块的映射
	if ids, ok := r.sourceToIDs[chunk.SourceID]; ok {
		updatedIDs := make([]string, 0, len(ids)-1)
		for _, chunkID := range ids {
			if chunkID != id {
				updatedIDs = append(updatedIDs, chunkID)
			}
		}

		if len(updatedIDs) == 0 {
			delete(r.sourceToIDs, chunk.SourceID)
		} else {
			r.sourceToIDs[chunk.SourceID] = updatedIDs
		}
	}

	return nil
}

// DeleteBySource 删除指定来源的所有文本块
func (r *MemoryRepository) DeleteBySource(sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunkIDs, exists := r.sourceToIDs[sourceID]
	if !exists {
		// 没有找到来源ID，无需操作
		return nil
	}

	for _, id := range chunkIDs {
		delete(r.chunks, id)
	}
	delete(r.sourceToIDs, sourceID)

	return nil
}

// Search 相似度搜索
// 对大集合使用并行距离计算
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	// 对于余弦距离，对查询向量进行归一化处理
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// 过滤文本块
	var filtered []Chunk

	// 优化：使用索引直接查找来源相关的块，而不是遍历所有块
	if len(filter.SourceIDs) > 0 {
		for _, sourceID := range filter.SourceIDs {
			chunkIDs, exists := r.sourceToIDs[sourceID]
			if !exists {
				continue
			}

			for _, chunkID := range chunkIDs {
				chunk, exists := r.chunks[chunkID]
				if exists && matchMetadata(chunk.Metadata, filter.Metadata) {
					filtered = append(filtered, chunk)
				}
			}
		}
	} else {
		filtered = make([]Chunk, 0, len(r.chunks))
		for _, chunk := range r.chunks {
			if matchMetadata(chunk.Metadata, filter.Metadata) {
				filtered = append(filtered, chunk)
			}
		}
	}

	if len(filtered) == 0 {
		return []SearchResult{}, nil
	}

	threads := runtime.NumCPU() * 4 / 5
	if threads < 1 {
		threads = 1
	}
	// 对于小量块不使用并发
	if len(filtered) < 100 || threads == 1 {
		return r.serialSearch(vector, filtered, filter)
	}
	return r.parallelSearch(vector, filtered, filter, threads)
}

// serialSearch 串行搜索实现
func (r *MemoryRepository) serialSearch(vector []float32, chunks []Chunk, filter SearchFilter) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(chunks))

	for _, chunk := range chunks {
		dist, err := ComputeDistance(vector, chunk.Vector, r.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %v", err)
		}

		score := DistanceToScore(dist, r.distType)

		// 只保留高于最小分数的结果
		if score >= filter.MinScore {
			results = append(results, SearchResult{
				Chunk:    chunk,
				Score:    score,
				Distance: dist,
			})
		}
	}

	// 按得分排序（从高到低）
	SortSearchResults(results)

	// 只返回前N个结果
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}

	return results, nil
}

// parallelSearch 并行搜索实现
func (r *MemoryRepository) parallelSearch(vector []float32, chunks []Chunk, filter SearchFilter, threads int) ([]SearchResult, error) {
	chunksPerThread := (len(chunks) + threads - 1) / threads

	resultsChan := make(chan []SearchResult, threads)
	errorsChan := make(chan error, threads)
	launched := 0

	for i := 0; i < threads; i++ {
		start := i * chunksPerThread
		end := start + chunksPerThread
		if end > len(chunks) {
			end = len(chunks)
		}
		if start >= end {
			continue
		}
		launched++

		go func(start, end int) {
			threadResults := make([]SearchResult, 0, end-start)

			for j := start; j < end; j++ {
				chunk := chunks[j]

				dist, err := ComputeDistance(vector, chunk.Vector, r.distType)
				if err != nil {
					errorsChan <- fmt.Errorf("error computing distance: %v", err)
					return
				}

				score := DistanceToScore(dist, r.distType)

				if score >= filter.MinScore {
					threadResults = append(threadResults, SearchResult{
						Chunk:    chunk,
						Score:    score,
						Distance: dist,
					})
				}
			}

			resultsChan <- threadResults
			errorsChan <- nil
		}(start, end)
	}

	// 收集结果和错误
	var allResults []SearchResult
	for i := 0; i < launched; i++ {
		if err := <-errorsChan; err != nil {
			return nil, err
		}
		allResults = append(allResults, <-resultsChan...)
	}

	SortSearchResults(allResults)

	if filter.MaxResults > 0 && len(allResults) > filter.MaxResults {
		allResults = allResults[:filter.MaxResults]
	}

	return allResults, nil
}

// Count 获取文本块总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.chunks), nil
}

// Close 关闭数据库连接
// 对于内存实现这是一个空操作
func (r *MemoryRepository) Close() error {
	return nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// 在包初始化时注册内存仓库
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
