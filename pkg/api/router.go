package api

import (
	"github.com/LENAX/stageflow/pkg/api/handler"
	"github.com/LENAX/stageflow/pkg/api/middleware"
	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/engine"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/gin-gonic/gin"
)

// Dependencies 路由依赖的核心组件
type Dependencies struct {
	Engine    *engine.Engine
	Linking   *linking.Engine
	Directory *directory.Service
	// Cache 目录缓存，写入依赖链后失效，可为nil
	Cache handler.CacheInvalidator
	// Events 事件订阅，nil时不注册WebSocket路由
	Events handler.EventSubscriber
	// Ready 就绪检查，可为nil
	Ready       handler.ReadyCheck
	Mode        string
	CORSOrigins []string
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies, version string) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(deps.CORSOrigins...))

	// 创建handlers
	taskHandler := handler.NewTaskHandler(deps.Engine)
	linkingHandler := handler.NewLinkingHandler(deps.Linking)
	directoryHandler := handler.NewDirectoryHandler(deps.Directory, deps.Cache)
	snapshotHandler := handler.NewSnapshotHandler(deps.Engine, deps.Linking)
	healthHandler := handler.NewHealthHandler(version, deps.Ready)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// Task路由
		tasks := v1.Group("/tasks")
		{
			tasks.GET("", taskHandler.List)
			tasks.POST("", taskHandler.Create)
			tasks.GET("/:id", taskHandler.Get)
			tasks.DELETE("/:id", taskHandler.Delete)
			tasks.PUT("/:id/status", taskHandler.UpdateStatus)
			tasks.POST("/:id/start", taskHandler.Start)
			tasks.POST("/:id/submit", taskHandler.Submit)
			tasks.POST("/:id/review/start", taskHandler.StartReview)
			tasks.POST("/:id/approve", taskHandler.Approve)
			tasks.POST("/:id/revision", taskHandler.RequireRevision)
			tasks.POST("/:id/cancel", taskHandler.Cancel)
			tasks.GET("/:id/prefill", taskHandler.Prefill)
		}

		// 联动配置路由
		linkings := v1.Group("/linkings")
		{
			linkings.GET("", linkingHandler.List)
			linkings.POST("", linkingHandler.Create)
			linkings.GET("/:id", linkingHandler.Get)
			linkings.PUT("/:id", linkingHandler.Update)
			linkings.DELETE("/:id", linkingHandler.Delete)
		}
		v1.GET("/field-mappings", linkingHandler.Mapping)
		v1.POST("/field-mappings/apply", linkingHandler.Apply)

		// 目录路由
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", directoryHandler.ListWorkflows)
			workflows.POST("", directoryHandler.RegisterWorkflow)
			workflows.GET("/:id", directoryHandler.GetWorkflow)
		}
		dependencies := v1.Group("/dependencies")
		{
			dependencies.GET("", directoryHandler.ListDependencies)
			dependencies.GET("/:id", directoryHandler.GetDependency)
			dependencies.PUT("/:id", directoryHandler.SaveDependency)
			dependencies.DELETE("/:id", directoryHandler.DeleteDependency)
			dependencies.GET("/:id/stages/:order", directoryHandler.GetStage)
		}

		// 快照路由
		snapshot := v1.Group("/snapshot")
		{
			snapshot.GET("/tasks", snapshotHandler.Tasks)
			snapshot.GET("/linkings", snapshotHandler.Linkings)
		}

		if deps.Events != nil {
			v1.GET("/events/ws", handler.NewEventHandler(deps.Events).Stream)
		}
	}

	return router
}
