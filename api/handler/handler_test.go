package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzhao/webqa-system/api"
	"github.com/mzhao/webqa-system/api/handler"
	"github.com/mzhao/webqa-system/internal/cache"
	"github.com/mzhao/webqa-system/internal/database"
	"github.com/mzhao/webqa-system/internal/document"
	"github.com/mzhao/webqa-system/internal/llm"
	"github.com/mzhao/webqa-system/internal/repository"
	"github.com/mzhao/webqa-system/internal/services"
	"github.com/mzhao/webqa-system/internal/vectordb"
	"github.com/mzhao/webqa-system/pkg/storage"
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

// fakeLLM 返回固定回答的大模型客户端
type fakeLLM struct {
	answer string
}

func (c *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return &llm.Response{Text: c.answer, ModelName: c.Name(), FinishTime: time.Now()}, nil
}

func (c *fakeLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.GenerateOption) (*llm.Response, error) {
	return &llm.Response{Text: c.answer, ModelName: c.Name(), FinishTime: time.Now()}, nil
}

func (c *fakeLLM) Stream(ctx context.Context, messages []llm.Message, fn llm.StreamFunc, options ...llm.GenerateOption) (*llm.Response, error) {
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

// testEnv 测试环境，持有路由和向量库引用
type testEnv struct {
	router   *gin.Engine
	vectorDB vectordb.Repository
}

// setupTestEnv 构建带内存依赖的完整API测试环境
func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &database.Config{
		Type:         "sqlite",
		DSN:          filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	require.NoError(t, database.Setup(cfg, logger))
	t.Cleanup(func() {
		_ = database.Close()
	})

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	vectorDB, err := vectordb.NewMemoryRepository(vectordb.Config{
		Type:      "memory",
		Dimension: 3,
	})
	require.NoError(t, err)

	memCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	llmClient := &fakeLLM{answer: "这是测试回答。"}

	sourceRepo := repository.NewSourceRepositoryWithDB(database.MustDB())
	chatRepo := repository.NewChatRepositoryWithDB(database.MustDB())

	splitter := document.NewTextSplitter(document.SplitterConfig{
		SplitType: document.ByParagraph,
		ChunkSize: 100,
	})

	sourceService := services.NewSourceService(
		store,
		document.NewWebLoader(document.DefaultWebLoaderConfig()),
		splitter,
		embedder,
		vectorDB,
		services.WithSourceRepository(sourceRepo),
		services.WithLogger(logger),
	)
	require.NoError(t, sourceService.Init())

	qaService := services.NewQAService(
		embedder,
		vectorDB,
		llmClient,
		llm.NewRAG(llmClient),
		memCache,
		services.WithQALogger(logger),
	)

	chatService := services.NewChatService(chatRepo, services.WithChatLogger(logger))

	router := api.SetupRouter(
		handler.NewSourceHandler(store, sourceService),
		handler.NewWebHandler(sourceService),
		handler.NewQAHandler(qaService, chatService),
		handler.NewChatHandler(chatService, qaService),
		nil,
	)

	return &testEnv{router: router, vectorDB: vectorDB}
}

// doJSON 发送JSON请求并返回响应记录器
func (env *testEnv) doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// parseData 解析统一响应中的data字段
func parseData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var resp struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 0, resp.Code, "unexpected response: %s", w.Body.String())
	return resp.Data
}

// addChunk 直接向向量库写入一个文本块
func (env *testEnv) addChunk(t *testing.T, id, sourceID, text string) {
	err := env.vectorDB.Add(vectordb.Chunk{
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

// TestHealthEndpoint 测试健康检查接口
func TestHealthEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.doJSON(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

// TestUploadAndSourceLifecycle 测试文件上传和来源查询、删除
func TestUploadAndSourceLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("第一段内容。\n\n第二段内容。"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("tags", "golang,test"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sources/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := parseData(t, w)
	sourceID := data["source_id"].(string)
	require.NotEmpty(t, sourceID)
	assert.Equal(t, "notes.txt", data["file_name"])

	// 同步模式下处理应已完成
	w = env.doJSON(t, http.MethodGet, "/api/sources/"+sourceID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := parseData(t, w)
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, float64(100), status["progress"])

	// 列表中应包含此来源
	w = env.doJSON(t, http.MethodGet, "/api/sources?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := parseData(t, w)
	assert.Equal(t, float64(1), list["total"])

	// 删除来源
	w = env.doJSON(t, http.MethodDelete, "/api/sources/"+sourceID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(t, http.MethodGet, "/api/sources/"+sourceID+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestUploadRejectsUnsupportedType 测试不支持的文件类型被拒绝
func TestUploadRejectsUnsupportedType(t *testing.T) {
	env := setupTestEnv(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "binary.exe")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x4d, 0x5a})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sources/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestWebIngestValidation 测试网页入库的URL校验
func TestWebIngestValidation(t *testing.T) {
	env := setupTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/web/ingest", map[string]string{"url": "not-a-url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.doJSON(t, http.MethodPost, "/api/web/ingest", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestWebIngestExistingURL 测试重复URL入库返回已有来源
func TestWebIngestExistingURL(t *testing.T) {
	env := setupTestEnv(t)

	// 预先登记一个已入库的网页来源
	repo := repository.NewSourceRepositoryWithDB(database.MustDB())
	manager := services.NewSourceStatusManager(repo, nil)
	pageURL := "https://example.com/docs/intro"
	require.NoError(t, manager.RegisterWebSource(context.Background(), "src-existing", pageURL))

	w := env.doJSON(t, http.MethodPost, "/api/web/ingest", map[string]string{"url": pageURL})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := parseData(t, w)
	assert.Equal(t, "src-existing", data["source_id"])
	assert.Equal(t, true, data["existed"])
}

// TestQAEndpoint 测试问答接口
func TestQAEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	env.addChunk(t, "chunk-1", "src-1", "Go是Google开发的编译型语言。")

	w := env.doJSON(t, http.MethodPost, "/api/qa", map[string]interface{}{
		"question": "Go是什么语言？",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := parseData(t, w)
	assert.Equal(t, "这是测试回答。", data["answer"])
	sources := data["sources"].([]interface{})
	require.Len(t, sources, 1)
}

// TestQAEndpointValidation 测试问答接口的参数校验
func TestQAEndpointValidation(t *testing.T) {
	env := setupTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/qa", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestQAStreamEndpoint 测试流式问答接口
func TestQAStreamEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	env.addChunk(t, "chunk-1", "src-1", "相关的内容。")

	w := env.doJSON(t, http.MethodPost, "/api/qa/stream", map[string]interface{}{
		"question": "问题",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	assert.Contains(t, body, "data: ")
	assert.Contains(t, body, "delta")
	assert.Contains(t, body, `"done":true`)

	// 拼接所有增量片段应得到完整回答
	var streamed strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		if delta, ok := event["delta"].(string); ok {
			streamed.WriteString(delta)
		}
	}
	assert.Equal(t, "这是测试回答。", streamed.String())
}

// TestChatSessionFlow 测试会话创建、提问、消息查询和删除
func TestChatSessionFlow(t *testing.T) {
	env := setupTestEnv(t)
	env.addChunk(t, "chunk-1", "src-1", "相关的内容。")

	// 创建会话
	w := env.doJSON(t, http.MethodPost, "/api/chats", map[string]string{"title": "测试会话"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sessionID := parseData(t, w)["session_id"].(string)
	require.NotEmpty(t, sessionID)

	// 在会话中提问
	w = env.doJSON(t, http.MethodPost, "/api/chats/"+sessionID+"/ask", map[string]interface{}{
		"question": "问题",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "这是测试回答。", parseData(t, w)["answer"])

	// 会话中应有用户消息和助手消息
	w = env.doJSON(t, http.MethodGet, "/api/chats/"+sessionID+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	messagesData := parseData(t, w)
	assert.Equal(t, float64(2), messagesData["total"])

	// 重命名会话
	w = env.doJSON(t, http.MethodPut, "/api/chats/"+sessionID, map[string]string{"title": "新标题"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(t, http.MethodGet, "/api/chats/"+sessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "新标题", parseData(t, w)["title"])

	// 删除会话
	w = env.doJSON(t, http.MethodDelete, "/api/chats/"+sessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(t, http.MethodGet, "/api/chats/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestChatListWithMessageCount 测试带消息数量的会话列表
func TestChatListWithMessageCount(t *testing.T) {
	env := setupTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/chats", map[string]string{"title": "会话A"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(t, http.MethodGet, "/api/chats?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := parseData(t, w)
	assert.Equal(t, float64(1), data["total"])
}

// TestTraceIDHeader 测试追踪ID的传递
func TestTraceIDHeader(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, "trace-123", w.Header().Get("X-Trace-ID"))

	// 未提供时自动生成
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}
