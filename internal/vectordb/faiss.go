package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 实现基于Faiss的向量仓库
type FaissRepository struct {
	mu             sync.RWMutex
	index          faiss.Index
	chunks         map[string]Chunk
	sourceToIDs    map[string][]string
	idToPosition   map[string]int
	indexPath      string
	metaPath       string
	dimension      int
	distanceType   DistanceType
	saveOnClose    bool
	autoSave       bool
	autoSaveCount  int
	operationCount int
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := config.Path
	metaPath := ""
	if indexPath != "" {
		metaPath = indexPath + ".meta.json"
	}

	repo := &FaissRepository{
		chunks:        make(map[string]Chunk),
		sourceToIDs:   make(map[string][]string),
		idToPosition:  make(map[string]int),
		indexPath:     indexPath,
		metaPath:      metaPath,
		dimension:     config.Dimension,
		distanceType:  distType,
		saveOnClose:   true,
		autoSave:      true,
		autoSaveCount: 100,
	}

	var index faiss.Index
	var err error

	// 尝试从文件加载索引
	if indexPath != "" && !config.InMemory && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if config.CreateIfNotExists {
				index, err = createFaissIndex(config.Dimension, distType)
				if err != nil {
					return nil, fmt.Errorf("failed to create Faiss index: %v", err)
				}
			} else {
				return nil, fmt.Errorf("failed to read index file: %v", err)
			}
		} else {
			if err := repo.loadMetadata(metaPath); err != nil {
				return nil, fmt.Errorf("failed to load chunk metadata: %v", err)
			}
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create Faiss index: %v", err)
		}
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Add 添加单个文本块到仓库
func (r *FaissRepository) Add(chunk Chunk) error {
	if err := ValidateVector(chunk.Vector, r.dimension); err != nil {
		return err
	}
	if r.distanceType == Cosine {
		chunk.Vector = normalizeVector(chunk.Vector)
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}
	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]interface{})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nextPos := int(r.index.Ntotal())
	if err := r.index.Add(chunk.Vector); err != nil {
		return fmt.Errorf("failed to add vector to index: %v", err)
	}

	r.chunks[chunk.ID] = chunk
	r.idToPosition[chunk.ID] = nextPos
	r.sourceToIDs[chunk.SourceID] = append(r.sourceToIDs[chunk.SourceID], chunk.ID)
	r.operationCount++

	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// AddBatch 批量添加文本块到仓库
func (r *FaissRepository) AddBatch(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		if err := ValidateVector(chunks[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for chunk %s: %v", chunks[i].ID, err)
		}
		if r.distanceType == Cosine {
			chunks[i].Vector = normalizeVector(chunks[i].Vector)
		}
		vectors[i] = chunks[i].Vector
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = time.Now()
		}
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]interface{})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	startPos := int(r.index.Ntotal())
	for _, vector := range vectors {
		if err := r.index.Add(vector); err != nil {
			return fmt.Errorf("failed to add vector to index: %v", err)
		}
	}

	for i, chunk := range chunks {
		position := startPos + i
		r.chunks[chunk.ID] = chunk
		r.idToPosition[chunk.ID] = position
		r.sourceToIDs[chunk.SourceID] = append(r.sourceToIDs[chunk.SourceID], chunk.ID)
	}
	r.operationCount += len(chunks)
	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// Get 获取单个文本块
func (r *FaissRepository) Get(id string) (Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chunk, exists := r.chunks[id]
	if !exists {
		return Chunk{}, ErrChunkNotFound
	}
	return chunk, nil
}

// Delete 删除单个文本块
// 注意：Faiss平面索引不支持删除向量，这里只移除元数据，
// 被删除的位置在搜索时会因找不到块ID而被跳过
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunk, exists := r.chunks[id]
	if !exists {
		return ErrChunkNotFound
	}
	delete(r.chunks, id)
	delete(r.idToPosition, id)
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
	r.operationCount++
	return nil
}

// DeleteBySource 删除指定来源的所有文本块
func (r *FaissRepository) DeleteBySource(sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunkIDs, exists := r.sourceToIDs[sourceID]
	if !exists {
		return nil
	}
	for _, id := range chunkIDs {
		delete(r.chunks, id)
		delete(r.idToPosition, id)
	}
	delete(r.sourceToIDs, sourceID)
	r.operationCount += len(chunkIDs)
	return nil
}

// Search 相似度搜索
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distanceType == Cosine {
		vector = normalizeVector(vector)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.chunks) == 0 {
		return []SearchResult{}, nil
	}
	k := filter.MaxResults
	if k <= 0 {
		k = 10
	}
	queryLimit := k * 2
	total := int(r.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}
	distances, indices, err := r.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}
	var results []SearchResult
	for i := 0; i < len(indices); i++ {
		idx := indices[i]
		if idx < 0 {
			continue
		}
		var chunkID string
		found := false
		for id, pos := range r.idToPosition {
			if pos == int(idx) {
				chunkID = id
				found = true
				break
			}
		}
		if !found {
			continue
		}
		chunk, exists := r.chunks[chunkID]
		if !exists {
			continue
		}
		if len(filter.SourceIDs) > 0 {
			found := false
			for _, id := range filter.SourceIDs {
				if chunk.SourceID == id {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if !matchMetadata(chunk.Metadata, filter.Metadata) {
			continue
		}
		dist := distances[i]
		score := DistanceToScore(dist, r.distanceType)
		if score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			Chunk:    chunk,
			Score:    score,
			Distance: dist,
		})
		if len(results) >= k {
			break
		}
	}
	SortSearchResults(results)
	return results, nil
}

// Count 获取文本块总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks), nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭仓库
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveOnClose && r.indexPath != "" {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("failed to save index on close: %v", err)
		}
	}
	return nil
}

// saveIndex 保存索引和块数据到文件
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}
	return r.saveMetadata()
}

// faissMetadata Faiss索引旁路保存的块元数据
type faissMetadata struct {
	Chunks         map[string]Chunk    `json:"chunks"`
	SourceToIDs    map[string][]string `json:"source_to_ids"`
	IDToPosition   map[string]int      `json:"id_to_position"`
	OperationCount int                 `json:"operation_count"`
}

// saveMetadata 保存块元数据到文件
func (r *FaissRepository) saveMetadata() error {
	if r.metaPath == "" {
		return nil
	}
	metadata := faissMetadata{
		Chunks:         r.chunks,
		SourceToIDs:    r.sourceToIDs,
		IDToPosition:   r.idToPosition,
		OperationCount: r.operationCount,
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从文件加载块元数据
func (r *FaissRepository) loadMetadata(path string) error {
	if path == "" || !fileExists(path) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}
	var metadata faissMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}
	r.chunks = metadata.Chunks
	r.sourceToIDs = metadata.SourceToIDs
	r.idToPosition = metadata.IDToPosition
	r.operationCount = metadata.OperationCount
	return nil
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
