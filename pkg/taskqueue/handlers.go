package taskqueue

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ProcessFunc 任务处理函数类型
// 执行实际的任务逻辑，结果通过队列的UpdateTaskStatus写回
type ProcessFunc func(ctx context.Context, task *Task) error

// FuncHandler 基于函数的任务处理器
// 将一个处理函数适配为Handler接口，便于服务层注册入库逻辑
type FuncHandler struct {
	taskTypes []TaskType     // 支持的任务类型
	fn        ProcessFunc    // 处理函数
	logger    *logrus.Logger // 日志记录器
}

// NewFuncHandler 创建基于函数的任务处理器
func NewFuncHandler(fn ProcessFunc, logger *logrus.Logger, taskTypes ...TaskType) *FuncHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &FuncHandler{
		taskTypes: taskTypes,
		fn:        fn,
		logger:    logger,
	}
}

// ProcessTask 处理任务
func (h *FuncHandler) ProcessTask(ctx context.Context, task *Task) error {
	h.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.Type,
		"source_id": task.SourceID,
	}).Info("Processing task")

	err := h.fn(ctx, task)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"task_id":   task.ID,
			"task_type": task.Type,
		}).Error("Task processing failed")
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.Type,
	}).Info("Task processed successfully")
	return nil
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *FuncHandler) GetTaskTypes() []TaskType {
	return h.taskTypes
}

// RegisterHandlers 将处理器注册到工作者的所有支持类型上
func RegisterHandlers(worker Worker, handlers ...Handler) {
	for _, h := range handlers {
		for _, taskType := range h.GetTaskTypes() {
			worker.RegisterHandler(taskType, h)
		}
	}
}
