package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cenate-turnos/backend/config"
	"cenate-turnos/backend/internal/api/handler"
	"cenate-turnos/backend/internal/api/middleware"
	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/pkg/jwt"
	"cenate-turnos/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok", "redis": rdb != nil}
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, status)
	})

	reviewers := middleware.RoleAuth(model.RoleAdmin, model.RoleReviewer)
	adminOnly := middleware.RoleAuth(model.RoleAdmin)
	limited := middleware.RateLimit(rdb, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(jwtMgr, rdb))
	{
		// 周期模块
		periods := authorized.Group("/periods")
		{
			periods.GET("", h.Period.ListPeriods)
			periods.GET("/:id", h.Period.GetPeriod)
			periods.GET("/:id/stats", reviewers, h.Period.GetStats)
			periods.POST("", adminOnly, h.Period.CreatePeriod)
			periods.PUT("/:id", adminOnly, h.Period.UpdatePeriod)
			periods.PUT("/:id/activate", adminOnly, h.Period.ActivatePeriod)
			periods.PUT("/:id/reopen", adminOnly, h.Period.ReopenPeriod)
			periods.PUT("/:id/close", adminOnly, h.Period.ClosePeriod)
			periods.DELETE("/:id", adminOnly, h.Period.VoidPeriod)
		}

		// 班次配置
		authorized.POST("/turnos/preview", h.Turno.Preview)

		// 申请模块（归属与可见性在 Service 层判断）
		requests := authorized.Group("/requests")
		{
			requests.PUT("/draft", limited, h.Request.SaveDraft)
			requests.GET("/my", h.Request.ListMine)
			requests.GET("", reviewers, h.Request.ListByPeriod)
			requests.GET("/:id", h.Request.GetRequest)
			requests.DELETE("/:id", limited, h.Request.DeleteRequest)
			requests.POST("/:id/details", limited, h.Request.AttachDetail)
			requests.DELETE("/:id/details/:detailId", limited, h.Request.RemoveDetail)
			requests.POST("/:id/submit", limited, h.Request.Submit)
			requests.POST("/:id/cancel", limited, h.Request.Cancel)
			requests.POST("/:id/request-changes", reviewers, limited, h.Request.RequestChanges)
			requests.PUT("/:id/details/:detailId/decision", reviewers, limited, h.Request.DecideDetail)

			staged := requests.Group("/:id/details/:detailId/staged-decision", reviewers)
			{
				staged.POST("", limited, h.Request.StageDecision)
				staged.GET("", h.Request.GetStagedDecision)
				staged.DELETE("", h.Request.UndoStagedDecision)
			}
		}

		// 不可用时间
		unavailabilities := authorized.Group("/unavailabilities")
		{
			unavailabilities.GET("", h.Unavailability.ListMine)
			unavailabilities.POST("", limited, h.Unavailability.Create)
			unavailabilities.DELETE("/:id", h.Unavailability.Delete)
		}
	}

	return r
}
