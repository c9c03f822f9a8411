package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/drafts/internal/middleware"
	"github.com/mx-space/drafts/internal/modules/auth"
	"github.com/mx-space/drafts/internal/modules/document"
	"github.com/mx-space/drafts/internal/modules/draft"
	"github.com/mx-space/drafts/internal/modules/preference"
	"github.com/mx-space/drafts/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes(r *gin.Engine) {
	authMW := middleware.Auth(a.Auth)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	r.GET("/healthz", a.health)
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	api := r.Group(apiPrefix)
	if a.rc != nil {
		if a.cfg.RateLimit.Enable {
			api.Use(middleware.RateLimit(a.rc.Raw(), a.cfg.RateLimit.MaxPerSecond))
		}
		api.Use(middleware.Idempotence(a.rc.Raw()))
	}

	auth.NewHandler(a.Auth).RegisterRoutes(api, authMW)
	preference.NewHandler(a.Prefs).RegisterRoutes(api, authMW)
	document.NewHandler(a.Docs).RegisterRoutes(api, authMW)
	draft.NewHandler(a.Drafts).RegisterRoutes(api, authMW)

	jobs := api.Group("/jobs", authMW)
	jobs.GET("", func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})
	jobs.POST("/:name/run", func(c *gin.Context) {
		if err := a.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.NoContent(c)
	})
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"database": "ok"}
	healthy := true
	if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "down"
		healthy = false
	}
	if a.rc != nil {
		status["redis"] = "ok"
		if err := a.rc.Raw().Ping(ctx).Err(); err != nil {
			status["redis"] = "down"
			healthy = false
		}
	}
	if !healthy {
		c.AbortWithStatusJSON(503, gin.H{"ok": 0, "code": 503, "message": "unhealthy", "status": status})
		return
	}
	response.OK(c, status)
}
