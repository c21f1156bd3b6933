// Package router 提供 HTTP 路由配置
package router

import (
	"z-bid-doc-api/internal/config"
	"z-bid-doc-api/internal/interfaces/http/handler"
	"z-bid-doc-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由依赖的处理器集合
type Handlers struct {
	Health    *handler.HealthHandler
	Bidding   *handler.BiddingHandler
	LLMConfig *handler.LLMConfigHandler
	// RateLimiter 为 nil 时不启用限流
	RateLimiter middleware.RateLimiter
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		cfg:      cfg,
		handlers: handlers,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// CORS 中间件
	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	// 系统端点
	r.engine.GET("/health", r.handlers.Health.Health)
	r.engine.GET("/ready", r.handlers.Health.Ready)
	r.engine.GET("/live", r.handlers.Health.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// 生成类端点限流，查询端点不限
	generateLimit := middleware.RateLimit(r.cfg.Security.RateLimit, r.handlers.RateLimiter)

	// API v1 路由组
	v1 := r.engine.Group("/v1")
	{
		outline := v1.Group("/outline")
		{
			outline.POST("/generate", generateLimit, r.handlers.Bidding.GenerateOutline)
			outline.GET("", r.handlers.Bidding.GetOutline)
		}

		documents := v1.Group("/documents")
		{
			documents.POST("/generate", generateLimit, r.handlers.Bidding.GenerateDocument)
			documents.GET("/content", r.handlers.Bidding.GetContent)
		}

		cfgGroup := v1.Group("/config")
		{
			cfgGroup.GET("/llm", r.handlers.LLMConfig.Get)
			cfgGroup.PUT("/llm", r.handlers.LLMConfig.Update)
		}
	}
}
