package middleware

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"username-checker/internal/metrics"
	"username-checker/internal/ratelimit"
	"username-checker/internal/wire"
)

// RequestIDKey gin 上下文中请求ID的键
const RequestIDKey = "request_id"

// Middleware 中间件接口
type Middleware interface {
	Handle() gin.HandlerFunc
	Name() string
}

// LoggingMiddleware 日志中间件
type LoggingMiddleware struct {
	log logrus.FieldLogger
}

// NewLoggingMiddleware 创建日志中间件
func NewLoggingMiddleware(log logrus.FieldLogger) *LoggingMiddleware {
	return &LoggingMiddleware{log: log}
}

// Name 返回中间件名称
func (l *LoggingMiddleware) Name() string {
	return "logging"
}

// Handle 为每个请求分配请求ID并记录访问日志
func (l *LoggingMiddleware) Handle() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		ctx.Set(RequestIDKey, requestID)

		ctx.Next()

		l.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     ctx.Writer.Status(),
			"latency":    time.Since(start),
			"client_ip":  ctx.ClientIP(),
			"method":     ctx.Request.Method,
			"path":       ctx.Request.URL.Path,
			"query":      ctx.Request.URL.RawQuery,
			"user_agent": ctx.Request.UserAgent(),
		}).Info("HTTP Request")
	}
}

// RateLimitMiddleware 速率限制中间件，超限时返回 429
type RateLimitMiddleware struct {
	limiter    ratelimit.RateLimiter
	metrics    *metrics.Metrics
	retryAfter int
}

// NewRateLimitMiddleware 创建速率限制中间件
func NewRateLimitMiddleware(limiter ratelimit.RateLimiter, m *metrics.Metrics, retryAfter int) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:    limiter,
		metrics:    m,
		retryAfter: retryAfter,
	}
}

// Name 返回中间件名称
func (r *RateLimitMiddleware) Name() string {
	return "rate_limit"
}

// Handle 处理速率限制
func (r *RateLimitMiddleware) Handle() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		allowed := r.limiter.Allow(ctx.ClientIP())
		if r.metrics != nil {
			r.metrics.RecordRateLimit(allowed)
		}

		if !allowed {
			ctx.Header("Retry-After", strconv.Itoa(r.retryAfter))
			ctx.Data(http.StatusTooManyRequests, wire.JSONContentType, wire.Error(true, "Too many requests"))
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

// MetricsMiddleware 指标中间件
type MetricsMiddleware struct {
	metrics *metrics.Metrics
}

// NewMetricsMiddleware 创建指标中间件
func NewMetricsMiddleware(m *metrics.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

// Name 返回中间件名称
func (mm *MetricsMiddleware) Name() string {
	return "metrics"
}

// Handle 记录请求数、耗时和响应大小
func (mm *MetricsMiddleware) Handle() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		mm.metrics.IncrementActiveConnections()
		defer mm.metrics.DecrementActiveConnections()

		ctx.Next()

		// 未匹配路由统一归为一个标签，避免任意路径撑爆标签基数
		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}

		mm.metrics.RecordHTTPRequest(
			ctx.Request.Method,
			path,
			ctx.Writer.Status(),
			time.Since(start),
			int64(ctx.Writer.Size()),
		)
	}
}

// RecoveryMiddleware 恢复中间件，处理器 panic 时记录日志并返回 500
type RecoveryMiddleware struct {
	log logrus.FieldLogger
}

// NewRecoveryMiddleware 创建恢复中间件
func NewRecoveryMiddleware(log logrus.FieldLogger) *RecoveryMiddleware {
	return &RecoveryMiddleware{log: log}
}

// Name 返回中间件名称
func (rm *RecoveryMiddleware) Name() string {
	return "recovery"
}

// Handle 捕获 panic
func (rm *RecoveryMiddleware) Handle() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(ctx *gin.Context, err interface{}) {
		rm.log.WithFields(logrus.Fields{
			"method": ctx.Request.Method,
			"path":   ctx.Request.URL.Path,
			"panic":  err,
		}).Error("请求处理发生 panic")
		ctx.AbortWithStatus(http.StatusInternalServerError)
	})
}
