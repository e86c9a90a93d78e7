package vectordb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPgVectorBuildSearchQuery 测试搜索SQL的构建
func TestPgVectorBuildSearchQuery(t *testing.T) {
	repo := &PgVectorRepository{table: "chunks", dimension: 3}
	vector := []float32{1, 0, 0}

	// 无过滤条件时不加WHERE，限制数取默认值
	query, args, err := repo.buildSearchQuery(vector, SearchFilter{})
	require.NoError(t, err)
	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "ORDER BY embedding <=> $1 LIMIT $2")
	require.Len(t, args, 2)
	assert.Equal(t, 10, args[1])

	// 来源过滤
	query, args, err = repo.buildSearchQuery(vector, SearchFilter{
		SourceIDs:  []string{"src-a", "src-b"},
		MaxResults: 5,
	})
	require.NoError(t, err)
	assert.Contains(t, query, "WHERE source_id = ANY($2)")
	assert.Contains(t, query, "LIMIT $3")
	require.Len(t, args, 3)
	assert.Equal(t, []string{"src-a", "src-b"}, args[1])
	assert.Equal(t, 5, args[2])
}

// TestPgVectorBuildSearchQueryMetadata 测试元数据过滤下推到SQL
func TestPgVectorBuildSearchQueryMetadata(t *testing.T) {
	repo := &PgVectorRepository{table: "chunks", dimension: 3}
	vector := []float32{1, 0, 0}

	// 元数据等值匹配用JSONB包含谓词参数化
	query, args, err := repo.buildSearchQuery(vector, SearchFilter{
		Metadata:   map[string]interface{}{"lang": "en"},
		MaxResults: 5,
	})
	require.NoError(t, err)
	assert.Contains(t, query, "WHERE metadata @> $2::jsonb")
	require.Len(t, args, 3)
	assert.JSONEq(t, `{"lang":"en"}`, args[1].(string))
	// 限制数就是请求的结果数，匹配行不会被窗口截断
	assert.Equal(t, 5, args[2])

	// 来源和元数据组合时占位符顺序正确
	query, args, err = repo.buildSearchQuery(vector, SearchFilter{
		SourceIDs:  []string{"src-a"},
		Metadata:   map[string]interface{}{"lang": "en", "section": "guide"},
		MaxResults: 3,
	})
	require.NoError(t, err)
	assert.Contains(t, query, "source_id = ANY($2) AND metadata @> $3::jsonb")
	assert.Contains(t, query, "LIMIT $4")
	require.Len(t, args, 4)
	assert.JSONEq(t, `{"lang":"en","section":"guide"}`, args[2].(string))
	assert.Equal(t, 3, args[3])
}
