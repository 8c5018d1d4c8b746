package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/internal/handler"
	"github.com/JoelVR17/Trustless-Work-Test/internal/util"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/logger"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/metrics"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/rbac"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/trace"
)

// TraceMiddleware 从请求头读取 trace_id（没有则生成），写入 context 和响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeaders(c.GetHeader)
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName, traceID)
		c.Next()
	}
}

// RequestLogger 记录每个请求并上报 http_request_duration_seconds
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(status), duration)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
		}
		if caller := handler.Caller(c); caller != "" {
			fields = append(fields, zap.String("caller", caller.String()))
		}
		l := logger.WithTrace(c.Request.Context(), log)
		if status >= http.StatusInternalServerError {
			l.Warn("HTTP request", fields...)
			return
		}
		l.Info("HTTP request", fields...)
	}
}

// AuthMiddleware 校验 JWT，把 sub（调用方地址）和角色放进 context
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token", "code": "unauthenticated"})
			return
		}

		claims, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthenticated"})
			return
		}

		c.Set(handler.ContextCaller, escrow.Address(claims.Subject))
		c.Set(handler.ContextRole, rbac.NormalizeRole(claims.Role))
		c.Next()
	}
}

// RequirePermission 中间件：要求用户具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(handler.ContextRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated", "code": "unauthenticated"})
			return
		}

		r, _ := role.(string)
		if err := rbac.CheckPermission(r, permission); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": string(escrow.CodeUnauthorized)})
			return
		}

		c.Next()
	}
}
