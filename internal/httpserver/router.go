package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/internal/handler"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/otel"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/rbac"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Deps struct {
	Projects  *handler.ProjectHandler
	Ledger    *handler.LedgerHandler
	Admin     *handler.AdminHandler // nil disables /admin routes
	JWTSecret string
	Logger    *zap.Logger
	Readiness map[string]ReadinessCheck
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), RequestLogger(d.Logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyz(d.Readiness))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(d.JWTSecret))
	{
		projects := auth.Group("/projects")
		projects.Use(RequirePermission(rbac.PermissionProjectWrite))
		projects.POST("", d.Projects.CreateProject)
		projects.POST("/:id/objectives", d.Projects.AddObjectives)
		projects.POST("/:id/objectives/:oid/fund", d.Projects.FundObjective)
		projects.POST("/:id/objectives/:oid/complete", d.Projects.CompleteObjective)
		projects.POST("/:id/cancel", d.Projects.CancelProject)
		projects.POST("/:id/complete", d.Projects.CompleteProject)
		projects.POST("/:id/refund", d.Projects.RefundRemainingFunds)

		reads := auth.Group("/projects")
		reads.Use(RequirePermission(rbac.PermissionProjectRead))
		reads.GET("", d.Projects.ListProjects)
		reads.GET("/:id", d.Projects.GetProject)

		ledger := auth.Group("/ledger")
		ledger.GET("/balances/:addr", RequirePermission(rbac.PermissionLedgerRead), d.Ledger.GetBalance)
		ledger.POST("/approve", RequirePermission(rbac.PermissionLedgerWrite), d.Ledger.Approve)
		ledger.POST("/mint", RequirePermission(rbac.PermissionLedgerMint), d.Ledger.Mint)

		if d.Admin != nil {
			admin := auth.Group("/admin")
			admin.Use(RequirePermission(rbac.PermissionOutboxReplay))
			admin.POST("/outbox/replay", d.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", d.Admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}

func readyz(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
