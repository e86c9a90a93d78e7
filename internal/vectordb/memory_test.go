package vectordb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo 创建测试用的内存仓库
func newTestRepo(t *testing.T, dim int) Repository {
	t.Helper()

	repo, err := NewMemoryRepository(Config{
		Type:         "memory",
		Dimension:    dim,
		DistanceType: Cosine,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

// TestMemoryRepositoryAddAndGet 测试添加和获取文本块
func TestMemoryRepositoryAddAndGet(t *testing.T) {
	repo := newTestRepo(t, 3)

	chunk := Chunk{
		ID:       "chunk-1",
		SourceID: "src-1",
		Source:   "https://example.com/page",
		Position: 0,
		Text:     "第一个文本块",
		Vector:   []float32{1, 0, 0},
	}
	require.NoError(t, repo.Add(chunk))

	got, err := repo.Get("chunk-1")
	require.NoError(t, err)
	assert.Equal(t, "第一个文本块", got.Text)
	assert.Equal(t, "src-1", got.SourceID)
	assert.False(t, got.CreatedAt.IsZero())

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestMemoryRepositoryAddValidation 测试添加时的校验
func TestMemoryRepositoryAddValidation(t *testing.T) {
	repo := newTestRepo(t, 3)

	// 缺少ID
	err := repo.Add(Chunk{Vector: []float32{1, 0, 0}})
	assert.ErrorIs(t, err, ErrInvalidID)

	// 空向量
	err = repo.Add(Chunk{ID: "chunk-1"})
	assert.ErrorIs(t, err, ErrEmptyVector)

	// 维度不匹配
	err = repo.Add(Chunk{ID: "chunk-1", Vector: []float32{1, 0}})
	assert.Error(t, err)
}

// TestMemoryRepositoryAddBatch 测试批量添加
func TestMemoryRepositoryAddBatch(t *testing.T) {
	repo := newTestRepo(t, 3)

	chunks := make([]Chunk, 0, 5)
	for i := 0; i < 5; i++ {
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("chunk-%d", i),
			SourceID: "src-1",
			Position: i,
			Text:     fmt.Sprintf("第%d块", i),
			Vector:   []float32{float32(i + 1), 1, 0},
		})
	}
	require.NoError(t, repo.AddBatch(chunks))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// 空批次是空操作
	assert.NoError(t, repo.AddBatch(nil))
}

// TestMemoryRepositoryDelete 测试删除单个文本块
func TestMemoryRepositoryDelete(t *testing.T) {
	repo := newTestRepo(t, 3)

	require.NoError(t, repo.Add(Chunk{ID: "chunk-1", SourceID: "src-1", Vector: []float32{1, 0, 0}}))
	require.NoError(t, repo.Delete("chunk-1"))

	_, err := repo.Get("chunk-1")
	assert.ErrorIs(t, err, ErrChunkNotFound)

	// 重复删除报错
	assert.ErrorIs(t, repo.Delete("chunk-1"), ErrChunkNotFound)
}

// TestMemoryRepositoryDeleteBySource 测试按来源删除
func TestMemoryRepositoryDeleteBySource(t *testing.T) {
	repo := newTestRepo(t, 3)

	require.NoError(t, repo.AddBatch([]Chunk{
		{ID: "a-1", SourceID: "src-a", Vector: []float32{1, 0, 0}},
		{ID: "a-2", SourceID: "src-a", Vector: []float32{0, 1, 0}},
		{ID: "b-1", SourceID: "src-b", Vector: []float32{0, 0, 1}},
	}))

	require.NoError(t, repo.DeleteBySource("src-a"))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.Get("a-1")
	assert.ErrorIs(t, err, ErrChunkNotFound)
	_, err = repo.Get("b-1")
	assert.NoError(t, err)

	// 不存在的来源是空操作
	assert.NoError(t, repo.DeleteBySource("src-missing"))
}

// TestMemoryRepositorySearch 测试相似度搜索
func TestMemoryRepositorySearch(t *testing.T) {
	repo := newTestRepo(t, 3)

	require.NoError(t, repo.AddBatch([]Chunk{
		{ID: "exact", SourceID: "src-1", Text: "完全匹配", Vector: []float32{1, 0, 0}},
		{ID: "close", SourceID: "src-1", Text: "相近内容", Vector: []float32{0.9, 0.1, 0}},
		{ID: "far", SourceID: "src-2", Text: "无关内容", Vector: []float32{0, 0, 1}},
	}))

	results, err := repo.Search([]float32{1, 0, 0}, SearchFilter{MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 按得分降序排列
	assert.Equal(t, "exact", results[0].Chunk.ID)
	assert.Equal(t, "close", results[1].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
	assert.Greater(t, results[0].Score, results[2].Score)
}

// TestMemoryRepositorySearchWithFilter 测试带过滤条件的搜索
func TestMemoryRepositorySearchWithFilter(t *testing.T) {
	repo := newTestRepo(t, 3)

	require.NoError(t, repo.AddBatch([]Chunk{
		{ID: "a-1", SourceID: "src-a", Vector: []float32{1, 0, 0}},
		{ID: "a-2", SourceID: "src-a", Vector: []float32{0.9, 0.1, 0}},
		{ID: "b-1", SourceID: "src-b", Vector: []float32{1, 0, 0}},
	}))

	// 按来源过滤
	results, err := repo.Search([]float32{1, 0, 0}, SearchFilter{
		SourceIDs:  []string{"src-a"},
		MaxResults: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, "src-a", result.Chunk.SourceID)
	}

	// 最小分数过滤
	results, err = repo.Search([]float32{1, 0, 0}, SearchFilter{
		MinScore:   0.999,
		MaxResults: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// 限制返回数量
	results, err = repo.Search([]float32{1, 0, 0}, SearchFilter{MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// 过滤后无结果返回空切片
	results, err = repo.Search([]float32{1, 0, 0}, SearchFilter{
		SourceIDs: []string{"src-missing"},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestMemoryRepositorySearchMetadataFilter 测试元数据过滤
func TestMemoryRepositorySearchMetadataFilter(t *testing.T) {
	repo := newTestRepo(t, 3)

	require.NoError(t, repo.AddBatch([]Chunk{
		{ID: "zh", SourceID: "src-1", Vector: []float32{1, 0, 0}, Metadata: map[string]interface{}{"lang": "zh"}},
		{ID: "en", SourceID: "src-1", Vector: []float32{1, 0, 0}, Metadata: map[string]interface{}{"lang": "en"}},
	}))

	results, err := repo.Search([]float32{1, 0, 0}, SearchFilter{
		Metadata:   map[string]interface{}{"lang": "zh"},
		MaxResults: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "zh", results[0].Chunk.ID)
}

// TestMemoryRepositorySearchInvalidVector 测试非法查询向量
func TestMemoryRepositorySearchInvalidVector(t *testing.T) {
	repo := newTestRepo(t, 3)

	_, err := repo.Search(nil, SearchFilter{})
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = repo.Search([]float32{1, 0}, SearchFilter{})
	assert.Error(t, err)
}

// TestMemoryRepositoryLargeSearch 测试触发并行搜索的较大集合
func TestMemoryRepositoryLargeSearch(t *testing.T) {
	repo := newTestRepo(t, 3)

	chunks := make([]Chunk, 0, 500)
	for i := 0; i < 500; i++ {
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("chunk-%d", i),
			SourceID: fmt.Sprintf("src-%d", i%10),
			Vector:   []float32{float32(i%7 + 1), float32(i%5 + 1), float32(i%3 + 1)},
		})
	}
	require.NoError(t, repo.AddBatch(chunks))

	results, err := repo.Search([]float32{1, 1, 1}, SearchFilter{MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, results, 5)

	// 结果保持降序
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

// TestNewRepositoryFactory 测试仓库工厂
func TestNewRepositoryFactory(t *testing.T) {
	repo, err := NewRepository(Config{Type: "memory", Dimension: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, repo.GetDimension())

	// 未知类型回退到内存实现
	repo, err = NewRepository(Config{Type: "nonexistent", Dimension: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.GetDimension())

	// 维度必须为正
	_, err = NewRepository(Config{Type: "memory"})
	assert.Error(t, err)
}

// TestDistanceToScore 测试距离到评分的换算
func TestDistanceToScore(t *testing.T) {
	assert.InDelta(t, 1.0, DistanceToScore(0, Cosine), 0.001)
	assert.InDelta(t, 0.5, DistanceToScore(0.5, Cosine), 0.001)
	assert.InDelta(t, 1.0, DistanceToScore(1, DotProduct), 0.001)
	assert.InDelta(t, 1.0, DistanceToScore(0, Euclidean), 0.001)
	assert.Greater(t, DistanceToScore(0.5, Euclidean), DistanceToScore(1.5, Euclidean))
}

// TestComputeDistance 测试距离计算
func TestComputeDistance(t *testing.T) {
	v1 := []float32{1, 0, 0}
	v2 := []float32{0, 1, 0}

	dist, err := ComputeDistance(v1, v1, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, dist, 0.001)

	dist, err = ComputeDistance(v1, v2, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dist, 0.001)

	dist, err = ComputeDistance(v1, v2, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 1.4142, dist, 0.001)

	_, err = ComputeDistance(v1, []float32{1, 0}, Cosine)
	assert.Error(t, err)

	_, err = ComputeDistance(v1, v2, DistanceType("bad"))
	assert.Error(t, err)
}
