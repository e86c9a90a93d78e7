package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mzhao/webqa-system/api/middleware"
	"github.com/mzhao/webqa-system/api/model"
	"github.com/mzhao/webqa-system/internal/models"
	"github.com/mzhao/webqa-system/internal/services"
)

// ChatHandler 聊天会话处理器
// 负责会话管理和会话内问答
type ChatHandler struct {
	chatService *services.ChatService
	qaService   *services.QAService
}

// NewChatHandler 创建聊天会话处理器
func NewChatHandler(chatService *services.ChatService, qaService *services.QAService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		qaService:   qaService,
	}
}

// Create 创建新会话
// POST /api/chats
func (h *ChatHandler) Create(c *gin.Context) {
	var req model.ChatCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		middleware.HandleError(c, middleware.NewValidationError("请求参数错误", err.Error()))
		return
	}

	session, err := h.chatService.CreateChat(c.Request.Context(), req.Title)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("会话创建失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToChatSessionInfo(session)))
}

// List 查询会话列表
// GET /api/chats
func (h *ChatHandler) List(c *gin.Context) {
	var req model.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("查询参数错误", err.Error()))
		return
	}

	result, total, err := h.chatService.GetChatsWithMessageCount(c.Request.Context(), req.GetOffset(), req.GetPageSize())
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("会话列表查询失败", err.Error()))
		return
	}

	sessions := make([]model.ChatSessionInfo, 0, len(result))
	for _, item := range result {
		info := model.ChatSessionInfo{}
		if v, ok := item["id"].(string); ok {
			info.SessionID = v
		}
		if v, ok := item["title"].(string); ok {
			info.Title = v
		}
		if v, ok := item["created_at"].(time.Time); ok {
			info.CreatedAt = v.Format(time.RFC3339)
		}
		if v, ok := item["updated_at"].(time.Time); ok {
			info.UpdatedAt = v.Format(time.RFC3339)
		}
		if v, ok := item["message_count"].(int64); ok {
			info.MessageCount = v
		}
		sessions = append(sessions, info)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChatSessionListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Sessions: sessions,
	}))
}

// Get 查询单个会话
// GET /api/chats/:id
func (h *ChatHandler) Get(c *gin.Context) {
	var req model.ChatIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("会话ID不能为空", err.Error()))
		return
	}

	session, err := h.chatService.GetChatSession(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, middleware.NewNotFoundError("会话不存在"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToChatSessionInfo(session)))
}

// Rename 重命名会话
// PUT /api/chats/:id
func (h *ChatHandler) Rename(c *gin.Context) {
	var uriReq model.ChatIDRequest
	if err := c.ShouldBindUri(&uriReq); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("会话ID不能为空", err.Error()))
		return
	}

	var req model.ChatRenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("标题不能为空", err.Error()))
		return
	}

	if err := h.chatService.RenameChatSession(c.Request.Context(), uriReq.ID, req.Title); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("会话重命名失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"session_id": uriReq.ID,
		"title":      req.Title,
	}))
}

// Delete 删除会话及其所有消息
// DELETE /api/chats/:id
func (h *ChatHandler) Delete(c *gin.Context) {
	var req model.ChatIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("会话ID不能为空", err.Error()))
		return
	}

	if _, err := h.chatService.GetChatSession(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, middleware.NewNotFoundError("会话不存在"))
		return
	}

	if err := h.chatService.DeleteChatSession(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("会话删除失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"session_id": req.ID,
		"deleted":    true,
	}))
}

// Messages 查询会话消息列表
// GET /api/chats/:id/messages
func (h *ChatHandler) Messages(c *gin.Context) {
	var uriReq model.ChatIDRequest
	if err := c.ShouldBindUri(&uriReq); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("会话ID不能为空", err.Error()))
		return
	}

	var req model.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("查询参数错误", err.Error()))
		return
	}

	if _, err := h.chatService.GetChatSession(c.Request.Context(), uriReq.ID); err != nil {
		middleware.HandleError(c, middleware.NewNotFoundError("会话不存在"))
		return
	}

	messages, total, err := h.chatService.GetChatMessages(c.Request.Context(), uriReq.ID, req.GetOffset(), req.GetPageSize())
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("消息查询失败", err.Error()))
		return
	}

	items := make([]model.ChatMessageInfo, 0, len(messages))
	for _, msg := range messages {
		items = append(items, model.ConvertToChatMessageInfo(msg))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChatMessageListResponse{
		SessionID: uriReq.ID,
		Total:     total,
		Messages:  items,
	}))
}

// Ask 在会话中提问，问答记录自动保存为会话消息
// POST /api/chats/:id/ask
func (h *ChatHandler) Ask(c *gin.Context) {
	var uriReq model.ChatIDRequest
	if err := c.ShouldBindUri(&uriReq); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("会话ID不能为空", err.Error()))
		return
	}

	var req model.ChatAskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("问题不能为空", err.Error()))
		return
	}

	if _, err := h.chatService.GetChatSession(c.Request.Context(), uriReq.ID); err != nil {
		middleware.HandleError(c, middleware.NewNotFoundError("会话不存在"))
		return
	}

	err := h.chatService.AddMessage(c.Request.Context(), &models.ChatMessage{
		SessionID: uriReq.ID,
		Role:      models.RoleUser,
		Content:   req.Question,
	})
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("消息保存失败", err.Error()))
		return
	}

	answer, refs, err := h.qaService.AnswerWithSources(c.Request.Context(), req.Question, req.SourceIDs)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("问答处理失败", err.Error()))
		return
	}

	if err := h.chatService.SaveAnswerWithRefs(c.Request.Context(), uriReq.ID, answer, refs); err != nil {
		middleware.GetLogger().WithError(err).WithField("session_id", uriReq.ID).
			Warn("Failed to save answer to chat session")
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.QAResponse{
		Question:  req.Question,
		Answer:    answer,
		Sources:   model.ConvertToQASources(refs),
		SessionID: uriReq.ID,
	}))
}
