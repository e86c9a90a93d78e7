package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mzhao/webqa-system/api/middleware"
	"github.com/mzhao/webqa-system/api/model"
	"github.com/mzhao/webqa-system/pkg/taskqueue"
)

// TaskHandler 任务查询处理器
// 负责异步处理任务的状态查询
type TaskHandler struct {
	taskQueue taskqueue.Queue
}

// NewTaskHandler 创建任务查询处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		taskQueue: queue,
	}
}

// Get 查询任务详情
// GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	var req model.TaskIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("任务ID不能为空", err.Error()))
		return
	}

	if h.taskQueue == nil {
		middleware.HandleError(c, middleware.NewBusinessError("异步任务处理未启用"))
		return
	}

	task, err := h.taskQueue.GetTask(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			middleware.HandleError(c, middleware.NewNotFoundError("任务不存在"))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("任务查询失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(taskqueue.NewTaskInfo(task)))
}

// ListBySource 查询来源关联的所有任务
// GET /api/tasks/source/:id
func (h *TaskHandler) ListBySource(c *gin.Context) {
	var req model.SourceIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("来源ID不能为空", err.Error()))
		return
	}

	if h.taskQueue == nil {
		middleware.HandleError(c, middleware.NewBusinessError("异步任务处理未启用"))
		return
	}

	tasks, err := h.taskQueue.GetTasksBySource(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("任务查询失败", err.Error()))
		return
	}

	infos := make([]*taskqueue.TaskInfo, 0, len(tasks))
	for _, task := range tasks {
		infos = append(infos, taskqueue.NewTaskInfo(task))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"source_id": req.ID,
		"total":     len(infos),
		"tasks":     infos,
	}))
}
