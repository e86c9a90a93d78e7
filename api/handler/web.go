package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mzhao/webqa-system/api/middleware"
	"github.com/mzhao/webqa-system/api/model"
	"github.com/mzhao/webqa-system/internal/services"
)

// WebHandler 网页入库处理器
// 负责单页入库和站点爬取
type WebHandler struct {
	sourceService *services.SourceService
}

// NewWebHandler 创建网页入库处理器
func NewWebHandler(sourceService *services.SourceService) *WebHandler {
	return &WebHandler{
		sourceService: sourceService,
	}
}

// Ingest 抓取并入库单个网页
// POST /api/web/ingest
func (h *WebHandler) Ingest(c *gin.Context) {
	var req model.WebIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("URL格式错误", err.Error()))
		return
	}

	sourceID, err := h.sourceService.IngestWebPage(c.Request.Context(), req.URL)
	if err != nil {
		// 重复URL视为成功，返回已有来源
		if errors.Is(err, services.ErrSourceExists) {
			c.JSON(http.StatusOK, model.NewSuccessResponse(model.WebIngestResponse{
				SourceID: sourceID,
				URL:      req.URL,
				Status:   h.sourceStatus(c, sourceID),
				Existed:  true,
			}))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("网页入库失败", err.Error()))
		return
	}

	if req.Tags != "" {
		if err := h.sourceService.UpdateSourceTags(c.Request.Context(), sourceID, req.Tags); err != nil {
			middleware.HandleError(c, middleware.NewInternalError("标签设置失败", err.Error()))
			return
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.WebIngestResponse{
		SourceID: sourceID,
		URL:      req.URL,
		Status:   h.sourceStatus(c, sourceID),
	}))
}

// Crawl 从入口URL爬取整个站点并入库
// POST /api/web/crawl
func (h *WebHandler) Crawl(c *gin.Context) {
	var req model.CrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("URL格式错误", err.Error()))
		return
	}

	if req.MaxDepth <= 0 {
		req.MaxDepth = 1
	}

	taskID, sourceIDs, err := h.sourceService.CrawlSite(c.Request.Context(), req.URL, req.MaxDepth)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("站点爬取失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.CrawlResponse{
		TaskID:    taskID,
		SourceIDs: sourceIDs,
		BaseURL:   req.URL,
		MaxDepth:  req.MaxDepth,
	}))
}

// sourceStatus 查询来源当前状态，失败时返回空字符串
func (h *WebHandler) sourceStatus(c *gin.Context, sourceID string) string {
	status, err := h.sourceService.GetSourceStatus(c.Request.Context(), sourceID)
	if err != nil {
		return ""
	}
	return string(status)
}
