package api

import (
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/serial-control/internal/hardware"
	"github.com/wfunc/serial-control/internal/middleware"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Device 控制接口依赖的串口设备
type Device interface {
	Send(ctx context.Context, cmd hardware.Command) error
	Status() *hardware.LinkStatus
}

// Router API路由器
type Router struct {
	engine  *gin.Engine
	device  Device
	control *ControlHandler
	log     *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(device Device, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.AccessLog())
	engine.Use(middleware.Recovery())

	engine.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	router := &Router{
		engine:  engine,
		device:  device,
		control: NewControlHandler(device, log),
		log:     log,
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 控制页面
	r.engine.GET("/", r.index)

	// 控制命令
	r.engine.GET("/control/:mode", r.control.Control)

	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 接口文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "Not found",
		})
	})
}

// index 渲染静态控制页面，不访问串口
func (r *Router) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Modes": hardware.Commands(),
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"serial": r.device.Status(),
	})
}

// Handler 返回http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
