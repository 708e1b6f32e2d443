// Package admin 提供独立端口上的运维接口：健康检查、维护计数器查看与重置、Prometheus 指标。
//
// 这些接口不能挂在主服务上，因为主服务对未知路径必须返回 404。
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"username-checker/internal/config"
	"username-checker/internal/counter"
	"username-checker/internal/logger"
	"username-checker/internal/metrics"
)

// Server 管理服务
type Server struct {
	config  config.AdminConfig
	router  *gin.Engine
	store   counter.Store
	metrics *metrics.Metrics
	version string
	server  *http.Server
}

// NewServer 创建管理服务
func NewServer(cfg config.AdminConfig, store counter.Store, m *metrics.Metrics, version string) *Server {
	s := &Server{
		config:  cfg,
		store:   store,
		metrics: m,
		version: version,
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())

	s.router.GET("/health", s.healthCheckHandler)
	s.router.GET(cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	adminGroup := s.router.Group("/admin")
	{
		adminGroup.GET("/maintenance", s.maintenanceHandler)
		adminGroup.DELETE("/maintenance", s.resetMaintenanceHandler)
	}

	s.server = &http.Server{
		Addr:    cfg.Addr(),
		Handler: s.router,
	}
	return s
}

// Handler 返回HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthCheckHandler 健康检查处理器，计数器存储不可用时返回 503
func (s *Server) healthCheckHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	result := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   s.version,
		"counter":   "ok",
	}

	if err := s.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		result["status"] = "unhealthy"
		result["counter"] = err.Error()
	}

	c.JSON(status, result)
}

// maintenanceHandler 返回当前维护计数器
func (s *Server) maintenanceHandler(c *gin.Context) {
	n, err := s.store.Get(c.Request.Context())
	if err != nil {
		logger.Errorf("读取维护计数器失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"counter": n})
}

// resetMaintenanceHandler 将维护计数器归零，用于测试之间重置故障状态
func (s *Server) resetMaintenanceHandler(c *gin.Context) {
	if err := s.store.Reset(c.Request.Context()); err != nil {
		logger.Errorf("重置维护计数器失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.metrics.SetMaintenanceCounter(0)
	logger.Info("维护计数器已重置")
	c.JSON(http.StatusOK, gin.H{"counter": 0})
}

// Start 启动管理服务
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	logger.Infof("管理服务启动在 http://%s，指标路径 %s", ln.Addr(), s.config.MetricsPath)

	err = s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop 关闭管理服务
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
