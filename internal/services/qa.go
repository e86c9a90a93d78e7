package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mzhao/webqa-system/internal/cache"
	"github.com/mzhao/webqa-system/internal/embedding"
	"github.com/mzhao/webqa-system/internal/llm"
	"github.com/mzhao/webqa-system/internal/models"
	"github.com/mzhao/webqa-system/internal/vectordb"
)

// NoAnswerFound 检索不到相关内容时返回的固定回答
const NoAnswerFound = "抱歉，我没有找到相关信息可以回答您的问题。"

// QAService 问答服务
// 负责协调向量检索和大模型生成答案
type QAService struct {
	embedder    embedding.Client    // 嵌入模型客户端
	vectorDB    vectordb.Repository // 向量数据库
	llm         llm.Client          // 大模型客户端
	rag         *llm.RAGService     // RAG服务
	cache       cache.Cache         // 缓存
	cacheTTL    time.Duration       // 缓存有效期
	searchLimit int                 // 检索结果数量限制
	minScore    float32             // 最低相似度分数
	logger      *logrus.Logger      // 日志记录器
}

// QAOption 问答服务配置选项
type QAOption func(*QAService)

// NewQAService 创建问答服务实例
func NewQAService(
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	llmClient llm.Client,
	rag *llm.RAGService,
	qaCache cache.Cache,
	opts ...QAOption,
) *QAService {
	service := &QAService{
		embedder:    embedder,
		vectorDB:    vectorDB,
		llm:         llmClient,
		rag:         rag,
		cache:       qaCache,
		cacheTTL:    24 * time.Hour,
		searchLimit: 5,
		minScore:    0.7,
		logger:      logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithCacheTTL 设置缓存时间
func WithCacheTTL(ttl time.Duration) QAOption {
	return func(s *QAService) {
		s.cacheTTL = ttl
	}
}

// WithSearchLimit 设置检索结果数量
func WithSearchLimit(limit int) QAOption {
	return func(s *QAService) {
		s.searchLimit = limit
	}
}

// WithMinScore 设置最低相似度分数
func WithMinScore(score float32) QAOption {
	return func(s *QAService) {
		s.minScore = score
	}
}

// WithQALogger 设置日志记录器
func WithQALogger(logger *logrus.Logger) QAOption {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Answer 回答问题，在全部来源中检索
func (s *QAService) Answer(ctx context.Context, question string) (string, []models.SourceRef, error) {
	return s.AnswerWithSources(ctx, question, nil)
}

// AnswerWithSources 在指定来源范围内回答问题
// sourceIDs为空时在全部来源中检索
func (s *QAService) AnswerWithSources(ctx context.Context, question string, sourceIDs []string) (string, []models.SourceRef, error) {
	if question == "" {
		return "", nil, fmt.Errorf("question cannot be empty")
	}

	// 1. 尝试从缓存获取
	cacheKey := cache.GenerateQuestionKey(question, sourceIDs...)
	if answer, refs, ok := s.lookupCache(cacheKey); ok {
		s.logger.WithField("cache_key", cacheKey).Debug("QA cache hit")
		return answer, refs, nil
	}

	// 2. 检索相关文本块
	refs, contexts, err := s.retrieve(ctx, question, sourceIDs)
	if err != nil {
		return "", nil, err
	}

	// 3. 没有相关内容时返回固定回答
	if len(refs) == 0 {
		s.storeCache(cacheKey, NoAnswerFound, nil)
		return NoAnswerFound, nil, nil
	}

	// 4. 使用RAG生成回答
	ragResponse, err := s.rag.Answer(ctx, question, contexts)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	// 5. 缓存结果
	s.storeCache(cacheKey, ragResponse.Answer, refs)

	return ragResponse.Answer, refs, nil
}

// AnswerStream 流式回答问题
// 增量文本通过fn回调，完整回答和引用来源在流结束后返回；
// 命中缓存时整段回答通过一次回调送出
func (s *QAService) AnswerStream(ctx context.Context, question string, sourceIDs []string, fn llm.StreamFunc) (string, []models.SourceRef, error) {
	if question == "" {
		return "", nil, fmt.Errorf("question cannot be empty")
	}
	if fn == nil {
		return "", nil, fmt.Errorf("stream callback cannot be nil")
	}

	// 命中缓存时直接回放缓存的回答
	cacheKey := cache.GenerateQuestionKey(question, sourceIDs...)
	if answer, refs, ok := s.lookupCache(cacheKey); ok {
		s.logger.WithField("cache_key", cacheKey).Debug("QA cache hit, replaying answer")
		if err := fn(ctx, []byte(answer)); err != nil {
			return "", nil, err
		}
		return answer, refs, nil
	}

	refs, contexts, err := s.retrieve(ctx, question, sourceIDs)
	if err != nil {
		return "", nil, err
	}

	if len(refs) == 0 {
		s.storeCache(cacheKey, NoAnswerFound, nil)
		if err := fn(ctx, []byte(NoAnswerFound)); err != nil {
			return "", nil, err
		}
		return NoAnswerFound, nil, nil
	}

	ragResponse, err := s.rag.AnswerStream(ctx, question, contexts, fn)
	if err != nil {
		return "", nil, fmt.Errorf("failed to stream answer: %w", err)
	}

	s.storeCache(cacheKey, ragResponse.Answer, refs)

	return ragResponse.Answer, refs, nil
}

// retrieve 将问题向量化并检索相关文本块
// 只保留相似度不低于minScore的结果
func (s *QAService) retrieve(ctx context.Context, question string, sourceIDs []string) ([]models.SourceRef, []string, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	filter := vectordb.SearchFilter{
		SourceIDs:  sourceIDs,
		MinScore:   s.minScore,
		MaxResults: s.searchLimit,
	}
	results, err := s.vectorDB.Search(vector, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("search failed: %w", err)
	}

	var refs []models.SourceRef
	var contexts []string
	for _, result := range results {
		if result.Score < s.minScore {
			continue
		}
		refs = append(refs, models.SourceRef{
			SourceID: result.Chunk.SourceID,
			Source:   result.Chunk.Source,
			Position: result.Chunk.Position,
			Text:     result.Chunk.Text,
			Score:    result.Score,
		})
		contexts = append(contexts, result.Chunk.Text)
	}

	return refs, contexts, nil
}

// lookupCache 从缓存读取回答和引用来源
func (s *QAService) lookupCache(cacheKey string) (string, []models.SourceRef, bool) {
	if s.cache == nil {
		return "", nil, false
	}

	answer, found, err := s.cache.Get(cacheKey)
	if err != nil || !found {
		return "", nil, false
	}

	var refs []models.SourceRef
	refsJSON, refsFound, refsErr := s.cache.Get(cacheKey + ":refs")
	if refsErr == nil && refsFound {
		if err := json.Unmarshal([]byte(refsJSON), &refs); err != nil {
			// 解析失败就用空列表，不影响主流程
			s.logger.WithError(err).Warn("Failed to unmarshal cached source refs")
			refs = nil
		}
	}

	return answer, refs, true
}

// storeCache 将回答和引用来源写入缓存
func (s *QAService) storeCache(cacheKey string, answer string, refs []models.SourceRef) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Set(cacheKey, answer, s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache answer")
		return
	}

	if len(refs) > 0 {
		refsJSON, err := json.Marshal(refs)
		if err == nil {
			if err := s.cache.Set(cacheKey+":refs", string(refsJSON), s.cacheTTL); err != nil {
				s.logger.WithError(err).Warn("Failed to cache source refs")
			}
		}
	}
}

// ClearCache 清除问答缓存
func (s *QAService) ClearCache() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear()
}
