package model

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page"`           // 页码，从1开始
	PageSize int `form:"page_size" json:"page_size"` // 每页数量
}

// GetPage 获取规范化后的页码
func (r *PaginationRequest) GetPage() int {
	if r.Page <= 0 {
		return 1
	}
	return r.Page
}

// GetPageSize 获取规范化后的每页数量
func (r *PaginationRequest) GetPageSize() int {
	if r.PageSize <= 0 {
		return 10
	}
	if r.PageSize > 100 {
		return 100
	}
	return r.PageSize
}

// GetOffset 计算查询偏移量
func (r *PaginationRequest) GetOffset() int {
	return (r.GetPage() - 1) * r.GetPageSize()
}

// WebIngestRequest 网页入库请求
type WebIngestRequest struct {
	URL  string `json:"url" binding:"required,url"` // 要抓取的页面URL
	Tags string `json:"tags"`                       // 标签，逗号分隔
}

// CrawlRequest 站点爬取请求
type CrawlRequest struct {
	URL      string `json:"url" binding:"required,url"` // 起始URL
	MaxDepth int    `json:"max_depth"`                  // 最大爬取深度，默认1
}

// SourceUploadRequest 文件上传请求（multipart表单）
type SourceUploadRequest struct {
	Tags string `form:"tags"` // 标签，逗号分隔
}

// SourceIDRequest 带来源ID的请求
type SourceIDRequest struct {
	ID string `uri:"id" binding:"required"` // 来源ID
}

// SourceListRequest 来源列表查询请求
type SourceListRequest struct {
	PaginationRequest
	Status    string `form:"status"`     // 按状态过滤
	Type      string `form:"type"`       // 按来源类型过滤（web/file）
	Tags      string `form:"tags"`       // 按标签过滤
	StartDate string `form:"start_date"` // 登记时间下限，格式2006-01-02
	EndDate   string `form:"end_date"`   // 登记时间上限，格式2006-01-02
}

// SourceTagsRequest 更新来源标签请求
type SourceTagsRequest struct {
	Tags string `json:"tags" binding:"required"` // 新标签，逗号分隔
}

// QARequest 问答请求
type QARequest struct {
	Question  string   `json:"question" binding:"required"` // 用户问题
	SourceIDs []string `json:"source_ids"`                  // 限定检索的来源ID，为空表示全库
	SessionID string   `json:"session_id"`                  // 关联的会话ID，可选
}

// TaskIDRequest 带任务ID的请求
type TaskIDRequest struct {
	ID string `uri:"id" binding:"required"` // 任务ID
}
