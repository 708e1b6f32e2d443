package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"username-checker/internal/config"
	"username-checker/internal/counter"
	"username-checker/internal/dispatcher"
	"username-checker/internal/logger"
	"username-checker/internal/metrics"
	"username-checker/internal/middleware"
	"username-checker/internal/ratelimit"
)

// Server 用户名可用性服务
type Server struct {
	config     *config.Config
	router     *gin.Engine
	dispatcher *dispatcher.Dispatcher
	metrics    *metrics.Metrics
	server     *http.Server
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewServer 创建服务实例
func NewServer(cfg *config.Config, store counter.Store, m *metrics.Metrics) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:  cfg,
		metrics: m,
		stop:    make(chan struct{}),
	}

	s.dispatcher = dispatcher.New(dispatcher.Options{
		Faults:  cfg.Faults,
		Store:   store,
		Metrics: m,
		Logger:  logger.WithField("component", "dispatcher"),
	})

	s.initializeRoutes()

	s.server = &http.Server{
		Handler:        s.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

// initializeRoutes 初始化路由
//
// 只注册一个接口，其余路径全部交给调度器返回 404。
func (s *Server) initializeRoutes() {
	s.router = gin.New()
	s.router.RedirectTrailingSlash = false
	s.router.RedirectFixedPath = false
	s.router.HandleMethodNotAllowed = true

	mws := []middleware.Middleware{
		middleware.NewMetricsMiddleware(s.metrics),
		middleware.NewLoggingMiddleware(logger.WithField("component", "http")),
		middleware.NewRecoveryMiddleware(logger.WithField("component", "recovery")),
	}
	if s.config.RateLimit.Enabled {
		limiter := ratelimit.NewTokenBucketLimiter(s.config.RateLimit)
		mws = append(mws, middleware.NewRateLimitMiddleware(limiter, s.metrics, s.config.RateLimit.RetryAfter))
	}

	for i, mw := range mws {
		s.router.Use(mw.Handle())
		logger.WithFields(logrus.Fields{
			"middleware": mw.Name(),
			"order":      i,
		}).Debug("注册中间件")
	}

	handler := gin.WrapH(s.dispatcher)
	s.router.GET(dispatcher.Path, handler)
	s.router.NoRoute(handler)
}

// Handler 返回HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen 绑定监听端口，端口被占用时立即返回错误
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.config.Server.Addr())
}

// Serve 在给定监听器上提供服务，直到 Stop 被调用
func (s *Server) Serve(ln net.Listener) error {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.metrics.UpdateSystemMetrics()
			case <-s.stop:
				return
			}
		}
	}()

	logger.Infof("用户名可用性服务启动在 http://%s", ln.Addr())

	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start 绑定端口并提供服务
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Stop 优雅关闭服务并释放端口
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("正在停止用户名可用性服务...")

	s.stopOnce.Do(func() { close(s.stop) })

	return s.server.Shutdown(ctx)
}
