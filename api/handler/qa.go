package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mzhao/webqa-system/api/middleware"
	"github.com/mzhao/webqa-system/api/model"
	"github.com/mzhao/webqa-system/internal/llm"
	"github.com/mzhao/webqa-system/internal/models"
	"github.com/mzhao/webqa-system/internal/services"
)

// QAHandler 问答处理器
// 负责基于知识库的问答和流式问答
type QAHandler struct {
	qaService   *services.QAService
	chatService *services.ChatService
}

// NewQAHandler 创建问答处理器
func NewQAHandler(qaService *services.QAService, chatService *services.ChatService) *QAHandler {
	return &QAHandler{
		qaService:   qaService,
		chatService: chatService,
	}
}

// Answer 处理问答请求
// POST /api/qa
func (h *QAHandler) Answer(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("问题不能为空", err.Error()))
		return
	}

	answer, refs, err := h.qaService.AnswerWithSources(c.Request.Context(), req.Question, req.SourceIDs)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("问答处理失败", err.Error()))
		return
	}

	// 指定会话时记录问答消息
	if req.SessionID != "" && h.chatService != nil {
		h.recordChatMessages(c.Request.Context(), req.SessionID, req.Question, answer, refs)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.QAResponse{
		Question:  req.Question,
		Answer:    answer,
		Sources:   model.ConvertToQASources(refs),
		SessionID: req.SessionID,
	}))
}

// AnswerStream 处理流式问答请求，以SSE格式推送回答片段
// POST /api/qa/stream
func (h *QAHandler) AnswerStream(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("问题不能为空", err.Error()))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		middleware.HandleError(c, middleware.NewInternalError("当前连接不支持流式响应"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	streamFn := func(ctx context.Context, chunk []byte) error {
		event := map[string]string{"delta": string(chunk)}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		if _, err := c.Writer.WriteString("data: " + string(data) + "\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	answer, refs, err := h.qaService.AnswerStream(c.Request.Context(), req.Question, req.SourceIDs, llm.StreamFunc(streamFn))
	if err != nil {
		// 流已经开始，错误只能以事件形式通知客户端
		errEvent, _ := json.Marshal(map[string]string{"error": err.Error()})
		c.Writer.WriteString("data: " + string(errEvent) + "\n\n")
		flusher.Flush()
		return
	}

	if req.SessionID != "" && h.chatService != nil {
		h.recordChatMessages(c.Request.Context(), req.SessionID, req.Question, answer, refs)
	}

	// 结束事件携带引用来源
	doneEvent, err := json.Marshal(map[string]interface{}{
		"done":    true,
		"sources": model.ConvertToQASources(refs),
	})
	if err == nil {
		c.Writer.WriteString("data: " + string(doneEvent) + "\n\n")
		flusher.Flush()
	}
}

// ClearCache 清空问答缓存
// POST /api/qa/cache/clear
func (h *QAHandler) ClearCache(c *gin.Context) {
	if err := h.qaService.ClearCache(); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("缓存清空失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"cleared": true}))
}

// recordChatMessages 将问答记录到会话中，失败不影响问答结果
func (h *QAHandler) recordChatMessages(ctx context.Context, sessionID, question, answer string, refs []models.SourceRef) {
	err := h.chatService.AddMessage(ctx, &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   question,
	})
	if err != nil {
		middleware.GetLogger().WithError(err).WithField("session_id", sessionID).
			Warn("Failed to record question in chat session")
		return
	}

	if err := h.chatService.SaveAnswerWithRefs(ctx, sessionID, answer, refs); err != nil {
		middleware.GetLogger().WithError(err).WithField("session_id", sessionID).
			Warn("Failed to record answer in chat session")
	}
}
