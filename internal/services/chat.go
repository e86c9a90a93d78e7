package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mzhao/webqa-system/internal/models"
	"github.com/mzhao/webqa-system/internal/repository"
)

// ChatService 聊天服务
// 负责管理问答会话和消息的业务逻辑
type ChatService struct {
	repo   repository.ChatRepository // 聊天仓储接口
	logger *logrus.Logger            // 日志记录器
}

// ChatOption 聊天服务配置选项
type ChatOption func(*ChatService)

// NewChatService 创建聊天服务实例
func NewChatService(repo repository.ChatRepository, opts ...ChatOption) *ChatService {
	service := &ChatService{
		repo:   repo,
		logger: logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithChatLogger 设置日志记录器
func WithChatLogger(logger *logrus.Logger) ChatOption {
	return func(s *ChatService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// CreateChat 创建新的问答会话
func (s *ChatService) CreateChat(ctx context.Context, title string) (*models.ChatSession, error) {
	if title == "" {
		title = "新对话 " + time.Now().Format("2006-01-02 15:04:05")
	}

	session := &models.ChatSession{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.repo.CreateSession(session); err != nil {
		s.logger.WithError(err).Error("Failed to create chat session")
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	s.logger.WithField("session_id", session.ID).Info("Chat session created")
	return session, nil
}

// GetChatSession 获取问答会话详情
func (s *ChatService) GetChatSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	session, err := s.repo.GetSession(sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to get chat session")
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	return session, nil
}

// ListChatSessions 列出问答会话
func (s *ChatService) ListChatSessions(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.ChatSession, int64, error) {
	sessions, total, err := s.repo.ListSessions(offset, limit, filters)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list chat sessions")
		return nil, 0, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	return sessions, total, nil
}

// RenameChatSession 重命名问答会话
func (s *ChatService) RenameChatSession(ctx context.Context, sessionID string, newTitle string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if newTitle == "" {
		return errors.New("new title cannot be empty")
	}

	session, err := s.repo.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("failed to get chat session: %w", err)
	}

	session.Title = newTitle
	session.UpdatedAt = time.Now()

	if err := s.repo.UpdateSession(session); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to rename chat session")
		return fmt.Errorf("failed to rename chat session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"new_title":  newTitle,
	}).Info("Chat session renamed")
	return nil
}

// DeleteChatSession 删除问答会话及其全部消息
func (s *ChatService) DeleteChatSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	if err := s.repo.DeleteSession(sessionID); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to delete chat session")
		return fmt.Errorf("failed to delete chat session: %w", err)
	}

	s.logger.WithField("session_id", sessionID).Info("Chat session deleted")
	return nil
}

// AddMessage 添加问答消息
func (s *ChatService) AddMessage(ctx context.Context, message *models.ChatMessage) error {
	if message.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if message.Content == "" {
		return errors.New("message content cannot be empty")
	}

	if message.Role != models.RoleUser &&
		message.Role != models.RoleSystem &&
		message.Role != models.RoleAssistant {
		message.Role = models.RoleUser
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	if err := s.repo.CreateMessage(message); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": message.SessionID,
			"role":       message.Role,
		}).Error("Failed to add chat message")
		return fmt.Errorf("failed to add chat message: %w", err)
	}

	return nil
}

// SaveAnswerWithRefs 保存带引用来源的助手回答
func (s *ChatService) SaveAnswerWithRefs(ctx context.Context, sessionID string, answer string, refs []models.SourceRef) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if answer == "" {
		return errors.New("answer cannot be empty")
	}

	message := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   answer,
		CreatedAt: time.Now(),
	}

	if len(refs) > 0 {
		refsJSON, err := json.Marshal(refs)
		if err != nil {
			s.logger.WithError(err).Error("Failed to marshal source refs")
			return fmt.Errorf("failed to marshal source refs: %w", err)
		}
		message.Sources = refsJSON
	}

	if err := s.repo.CreateMessage(message); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to save answer")
		return fmt.Errorf("failed to save answer: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"refs_count": len(refs),
	}).Info("Answer with source refs saved")
	return nil
}

// GetChatMessages 获取会话消息列表
func (s *ChatService) GetChatMessages(ctx context.Context, sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	if sessionID == "" {
		return nil, 0, errors.New("session ID cannot be empty")
	}

	messages, total, err := s.repo.GetMessages(sessionID, offset, limit)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to get chat messages")
		return nil, 0, fmt.Errorf("failed to get chat messages: %w", err)
	}

	return messages, total, nil
}

// GetRecentMessages 获取最近的消息
func (s *ChatService) GetRecentMessages(ctx context.Context, limit int) ([]*models.ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}

	messages, err := s.repo.GetRecentMessages(limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get recent messages")
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}

	return messages, nil
}

// CountChatMessages 统计会话消息数量
func (s *ChatService) CountChatMessages(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, errors.New("session ID cannot be empty")
	}

	count, err := s.repo.CountMessages(sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to count chat messages")
		return 0, fmt.Errorf("failed to count chat messages: %w", err)
	}

	return count, nil
}

// GetChatsWithMessageCount 获取带消息数量的会话列表
func (s *ChatService) GetChatsWithMessageCount(ctx context.Context, offset, limit int) ([]map[string]interface{}, int64, error) {
	sessions, total, err := s.repo.ListSessions(offset, limit, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	result := make([]map[string]interface{}, len(sessions))
	for i, session := range sessions {
		count, err := s.repo.CountMessages(session.ID)
		if err != nil {
			s.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to count messages")
			count = 0
		}

		result[i] = map[string]interface{}{
			"id":            session.ID,
			"title":         session.Title,
			"created_at":    session.CreatedAt,
			"updated_at":    session.UpdatedAt,
			"message_count": count,
		}
	}

	return result, total, nil
}
