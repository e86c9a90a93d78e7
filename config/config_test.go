package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults 测试无配置文件时的默认值
func TestLoadDefaults(t *testing.T) {
	// 避免读到仓库根目录的config.yaml
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "faiss", cfg.VectorDB.Type)
	assert.Equal(t, 1536, cfg.VectorDB.Dim)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "recursive", cfg.Document.SplitType)
	assert.Equal(t, 1000, cfg.Document.ChunkSize)
	assert.Equal(t, float32(0.7), cfg.Search.MinScore)
	assert.False(t, cfg.Queue.Enable)
	assert.True(t, cfg.Cache.Enable)
}

// TestLoadFromFile 测试从配置文件加载
func TestLoadFromFile(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
vectordb:
  type: "memory"
  dim: 768
search:
  limit: 3
  min_score: 0.5
web:
  rate_limit: 5
  max_depth: 4
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.VectorDB.Type)
	assert.Equal(t, 768, cfg.VectorDB.Dim)
	assert.Equal(t, 3, cfg.Search.Limit)
	assert.Equal(t, float32(0.5), cfg.Search.MinScore)
	assert.Equal(t, float64(5), cfg.Web.RateLimit)
	assert.Equal(t, 4, cfg.Web.MaxDepth)

	// 未覆盖的字段保持默认值
	assert.Equal(t, "local", cfg.Storage.Type)
}

// TestLoadInvalidFile 测试配置文件不存在的情况
func TestLoadInvalidFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestValidateRejectsInvalidConfig 测试非法配置被拒绝
func TestValidateRejectsInvalidConfig(t *testing.T) {
	content := `
server:
  port: 99999
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

// TestValidateCrossFieldRules 测试跨字段校验规则
func TestValidateCrossFieldRules(t *testing.T) {
	content := `
storage:
  type: "minio"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.endpoint")
}
