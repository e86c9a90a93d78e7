package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mzhao/webqa-system/api/handler"
	"github.com/mzhao/webqa-system/api/middleware"
)

// SetupRouter 配置API路由
func SetupRouter(
	sourceHandler *handler.SourceHandler,
	webHandler *handler.WebHandler,
	qaHandler *handler.QAHandler,
	chatHandler *handler.ChatHandler,
	taskHandler *handler.TaskHandler,
) *gin.Engine {
	router := gin.New()

	// 中间件顺序：追踪ID -> 日志 -> 跨域 -> 错误处理
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.RequestBodyLog())
	router.Use(Cors())
	router.Use(middleware.ErrorMiddleware())

	// 健康检查
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// 来源管理
	sources := router.Group("/api/sources")
	{
		sources.POST("/upload", sourceHandler.Upload)
		sources.GET("", sourceHandler.List)
		sources.GET("/:id", sourceHandler.Info)
		sources.GET("/:id/status", sourceHandler.Status)
		sources.PUT("/:id/tags", sourceHandler.UpdateTags)
		sources.DELETE("/:id", sourceHandler.Delete)
	}

	// 网页入库
	web := router.Group("/api/web")
	{
		web.POST("/ingest", webHandler.Ingest)
		web.POST("/crawl", webHandler.Crawl)
	}

	// 知识问答
	qa := router.Group("/api/qa")
	{
		qa.POST("", qaHandler.Answer)
		qa.POST("/stream", qaHandler.AnswerStream)
		qa.POST("/cache/clear", qaHandler.ClearCache)
	}

	// 聊天会话
	chats := router.Group("/api/chats")
	{
		chats.POST("", chatHandler.Create)
		chats.GET("", chatHandler.List)
		chats.GET("/:id", chatHandler.Get)
		chats.PUT("/:id", chatHandler.Rename)
		chats.DELETE("/:id", chatHandler.Delete)
		chats.GET("/:id/messages", chatHandler.Messages)
		chats.POST("/:id/ask", chatHandler.Ask)
	}

	// 任务查询（异步模式）
	if taskHandler != nil {
		tasks := router.Group("/api/tasks")
		{
			tasks.GET("/:id", taskHandler.Get)
			tasks.GET("/source/:id", taskHandler.ListBySource)
		}
	}

	return router
}

// Cors 跨域请求中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Trace-ID")
		c.Header("Access-Control-Expose-Headers", "X-Trace-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
