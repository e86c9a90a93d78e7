package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTest 设置一个miniredis实例用于测试
// 返回Redis地址和一个清理函数
func setupRedisTest(t *testing.T) (string, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	return mr.Addr(), func() {
		mr.Close()
	}
}

// newTestQueue 创建测试用的Redis队列
func newTestQueue(t *testing.T, redisAddr string) Queue {
	cfg := &Config{
		RedisAddr:   redisAddr,
		Concurrency: 2,
		RetryLimit:  2,
		RetryDelay:  time.Second,
	}

	queue, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	return queue
}

// TestNewRedisQueue 测试创建Redis队列实例
func TestNewRedisQueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	assert.NotNil(t, queue)

	err := queue.Close()
	assert.NoError(t, err)
}

// TestRedisQueue_Enqueue 测试队列入队功能
func TestRedisQueue_Enqueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()
	payload := &WebPageIngestPayload{
		URL:       "https://example.com/docs/intro",
		ChunkSize: 1000,
		Overlap:   200,
		SplitType: "recursive",
	}

	// 测试基本入队
	taskID, err := queue.Enqueue(ctx, TaskWebPageIngest, "src-123", payload)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	// 验证任务已入队
	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskWebPageIngest, task.Type)
	assert.Equal(t, "src-123", task.SourceID)
	assert.Equal(t, StatusPending, task.Status)

	// 验证载荷可以反序列化
	var decoded WebPageIngestPayload
	err = UnmarshalPayload(task.Payload, &decoded)
	assert.NoError(t, err)
	assert.Equal(t, payload.URL, decoded.URL)
	assert.Equal(t, payload.ChunkSize, decoded.ChunkSize)
}

// TestRedisQueue_GetTasksBySource 测试按来源查询任务
func TestRedisQueue_GetTasksBySource(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()

	// 为同一来源创建多个任务
	taskID1, err := queue.Enqueue(ctx, TaskWebPageIngest, "src-abc", &WebPageIngestPayload{URL: "https://example.com/a"})
	require.NoError(t, err)
	taskID2, err := queue.Enqueue(ctx, TaskWebPageIngest, "src-abc", &WebPageIngestPayload{URL: "https://example.com/b"})
	require.NoError(t, err)

	// 为另一个来源创建任务
	_, err = queue.Enqueue(ctx, TaskFileIngest, "src-other", &FileIngestPayload{FileName: "notes.md"})
	require.NoError(t, err)

	tasks, err := queue.GetTasksBySource(ctx, "src-abc")
	assert.NoError(t, err)
	assert.Len(t, tasks, 2)

	ids := []string{tasks[0].ID, tasks[1].ID}
	assert.Contains(t, ids, taskID1)
	assert.Contains(t, ids, taskID2)

	// 不存在的来源返回空列表
	tasks, err = queue.GetTasksBySource(ctx, "src-none")
	assert.NoError(t, err)
	assert.Empty(t, tasks)
}

// TestRedisQueue_UpdateTaskStatus 测试任务状态更新
func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskWebCrawl, "src-crawl", &WebCrawlPayload{BaseURL: "https://example.com"})
	require.NoError(t, err)

	// 更新为处理中
	err = queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, "")
	assert.NoError(t, err)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)

	// 更新为完成并写入结果
	result := &WebCrawlResult{
		BaseURL:   "https://example.com",
		PageCount: 3,
		SourceIDs: []string{"src-1", "src-2", "src-3"},
	}
	err = queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, "")
	assert.NoError(t, err)

	task, err = queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	var decoded WebCrawlResult
	err = UnmarshalPayload(task.Result, &decoded)
	assert.NoError(t, err)
	assert.Equal(t, 3, decoded.PageCount)
	assert.Len(t, decoded.SourceIDs, 3)
}

// TestRedisQueue_UpdateTaskStatusFailed 测试任务失败状态
func TestRedisQueue_UpdateTaskStatusFailed(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskFileIngest, "src-file", &FileIngestPayload{FileName: "broken.pdf"})
	require.NoError(t, err)

	err = queue.UpdateTaskStatus(ctx, taskID, StatusFailed, nil, "parse error: corrupted file")
	assert.NoError(t, err)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "parse error: corrupted file", task.Error)
}

// TestRedisQueue_DeleteTask 测试任务删除
func TestRedisQueue_DeleteTask(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskWebPageIngest, "src-del", &WebPageIngestPayload{URL: "https://example.com/x"})
	require.NoError(t, err)

	err = queue.DeleteTask(ctx, taskID)
	assert.NoError(t, err)

	// 删除后查询应返回未找到错误
	_, err = queue.GetTask(ctx, taskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// 来源任务集合中也应被移除
	tasks, err := queue.GetTasksBySource(ctx, "src-del")
	assert.NoError(t, err)
	assert.Empty(t, tasks)
}

// TestRedisQueue_WaitForTask 测试等待任务完成
func TestRedisQueue_WaitForTask(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskWebPageIngest, "src-wait", &WebPageIngestPayload{URL: "https://example.com/y"})
	require.NoError(t, err)

	// 已完成的任务立即返回
	err = queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, nil, "")
	require.NoError(t, err)

	task, err := queue.WaitForTask(ctx, taskID, time.Second*5)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)

	// 等待一直未完成的任务应超时
	pendingID, err := queue.Enqueue(ctx, TaskWebPageIngest, "src-pending", &WebPageIngestPayload{URL: "https://example.com/z"})
	require.NoError(t, err)

	_, err = queue.WaitForTask(ctx, pendingID, time.Millisecond*1500)
	assert.ErrorIs(t, err, ErrTaskTimeout)
}

// TestFuncHandler 测试基于函数的任务处理器
func TestFuncHandler(t *testing.T) {
	called := false
	handler := NewFuncHandler(func(ctx context.Context, task *Task) error {
		called = true
		assert.Equal(t, TaskWebPageIngest, task.Type)
		return nil
	}, nil, TaskWebPageIngest, TaskFileIngest)

	assert.Equal(t, []TaskType{TaskWebPageIngest, TaskFileIngest}, handler.GetTaskTypes())

	err := handler.ProcessTask(context.Background(), &Task{
		ID:   "task-1",
		Type: TaskWebPageIngest,
	})
	assert.NoError(t, err)
	assert.True(t, called)
}
