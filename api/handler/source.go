package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mzhao/webqa-system/api/middleware"
	"github.com/mzhao/webqa-system/api/model"
	"github.com/mzhao/webqa-system/internal/models"
	"github.com/mzhao/webqa-system/internal/services"
	"github.com/mzhao/webqa-system/pkg/storage"
)

// 上传文件大小上限
const maxUploadSize = 50 << 20 // 50MB

// 允许上传的文件扩展名
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".md":   true,
	".txt":  true,
	".html": true,
	".htm":  true,
}

// SourceHandler 来源管理处理器
// 负责文件上传、来源状态查询、列表和删除
type SourceHandler struct {
	storage       storage.Storage
	sourceService *services.SourceService
}

// NewSourceHandler 创建来源管理处理器
func NewSourceHandler(store storage.Storage, sourceService *services.SourceService) *SourceHandler {
	return &SourceHandler{
		storage:       store,
		sourceService: sourceService,
	}
}

// Upload 处理文件上传请求
// POST /api/sources/upload
func (h *SourceHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		middleware.HandleError(c, middleware.NewValidationError("请选择要上传的文件", err.Error()))
		return
	}

	if file.Size > maxUploadSize {
		middleware.HandleError(c, middleware.NewValidationError(
			fmt.Sprintf("文件大小超过限制（最大%dMB）", maxUploadSize>>20)))
		return
	}

	dotIndex := strings.LastIndex(file.Filename, ".")
	if dotIndex < 0 || !allowedExtensions[strings.ToLower(file.Filename[dotIndex:])] {
		middleware.HandleError(c, middleware.NewValidationError("不支持的文件类型，仅支持pdf/md/txt/html"))
		return
	}

	var req model.SourceUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("请求参数错误", err.Error()))
		return
	}

	src, err := file.Open()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("文件读取失败", err.Error()))
		return
	}
	defer src.Close()

	fileInfo, err := h.storage.Save(src, file.Filename)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("文件保存失败", err.Error()))
		return
	}

	sourceID := fileInfo.ID
	if sourceID == "" {
		sourceID = uuid.New().String()
	}

	statusManager := h.sourceService.GetStatusManager()
	if err := statusManager.RegisterFileSource(c.Request.Context(), sourceID, file.Filename, fileInfo.Path, file.Size); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("来源登记失败", err.Error()))
		return
	}

	if req.Tags != "" {
		if err := h.sourceService.UpdateSourceTags(c.Request.Context(), sourceID, req.Tags); err != nil {
			middleware.HandleError(c, middleware.NewInternalError("标签设置失败", err.Error()))
			return
		}
	}

	if err := h.sourceService.ProcessFile(c.Request.Context(), sourceID, fileInfo.Path); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("文件处理失败", err.Error()))
		return
	}

	status, err := h.sourceService.GetSourceStatus(c.Request.Context(), sourceID)
	if err != nil {
		status = models.SourceStatusPending
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SourceUploadResponse{
		SourceID: sourceID,
		FileName: file.Filename,
		Status:   string(status),
	}))
}

// Status 查询来源处理状态
// GET /api/sources/:id/status
func (h *SourceHandler) Status(c *gin.Context) {
	var req model.SourceIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("来源ID不能为空", err.Error()))
		return
	}

	statusManager := h.sourceService.GetStatusManager()
	src, err := statusManager.GetSource(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, middleware.NewNotFoundError("来源不存在"))
		return
	}

	resp := model.SourceStatusResponse{
		SourceID:     src.ID,
		Status:       string(src.Status),
		Progress:     src.Progress,
		Stage:        string(src.CurrentStage),
		SegmentCount: src.SegmentCount,
		Error:        src.Error,
	}
	if src.ProcessedAt != nil {
		resp.ProcessedAt = src.ProcessedAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// Info 查询来源详细信息
// GET /api/sources/:id
func (h *SourceHandler) Info(c *gin.Context) {
	var req model.SourceIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("来源ID不能为空", err.Error()))
		return
	}

	info, err := h.sourceService.GetSourceInfo(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, middleware.NewNotFoundError("来源不存在"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(info))
}

// List 查询来源列表
// GET /api/sources
func (h *SourceHandler) List(c *gin.Context) {
	var req model.SourceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("查询参数错误", err.Error()))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.Type != "" {
		filters["type"] = req.Type
	}
	if req.Tags != "" {
		filters["tags"] = req.Tags
	}
	if req.StartDate != "" {
		if t, err := time.Parse("2006-01-02", req.StartDate); err == nil {
			filters["start_time"] = t.Format("2006-01-02 15:04:05")
		}
	}
	if req.EndDate != "" {
		if t, err := time.Parse("2006-01-02", req.EndDate); err == nil {
			// 包含结束日期当天
			filters["end_time"] = t.Add(24 * time.Hour).Format("2006-01-02 15:04:05")
		}
	}

	sources, total, err := h.sourceService.ListSources(c.Request.Context(), req.GetOffset(), req.GetPageSize(), filters)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("来源列表查询失败", err.Error()))
		return
	}

	items := make([]model.SourceInfo, 0, len(sources))
	for _, src := range sources {
		items = append(items, model.ConvertToSourceInfo(src))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SourceListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Sources:  items,
	}))
}

// Delete 删除来源
// DELETE /api/sources/:id
func (h *SourceHandler) Delete(c *gin.Context) {
	var req model.SourceIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("来源ID不能为空", err.Error()))
		return
	}

	if _, err := h.sourceService.GetSourceStatus(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, middleware.NewNotFoundError("来源不存在"))
		return
	}

	if err := h.sourceService.DeleteSource(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("来源删除失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SourceDeleteResponse{
		SourceID: req.ID,
		Deleted:  true,
	}))
}

// UpdateTags 更新来源标签
// PUT /api/sources/:id/tags
func (h *SourceHandler) UpdateTags(c *gin.Context) {
	var uriReq model.SourceIDRequest
	if err := c.ShouldBindUri(&uriReq); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("来源ID不能为空", err.Error()))
		return
	}

	var req model.SourceTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("标签不能为空", err.Error()))
		return
	}

	if err := h.sourceService.UpdateSourceTags(c.Request.Context(), uriReq.ID, req.Tags); err != nil {
		middleware.HandleError(c, middleware.NewInternalError("标签更新失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"source_id": uriReq.ID,
		"tags":      req.Tags,
	}))
}
