// Package router assembles the Gin engine from the registered modules.
package router

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	apphttp "loadline_backend/internal/http"
	"loadline_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// New builds the HTTP engine: shared middleware, health endpoints, and one
// route registration pass over the app's modules.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(corsConfig(app))

	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/api/ready", func(c *gin.Context) {
		if err := app.Health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	v1 := engine.Group("/api/v1")

	opsLimiter := httpkit.NewIPRateLimiter(1, 5)
	ops := v1.Group("/ops")
	ops.Use(opsLimiter.RateLimit())
	ops.Use(opsKeyAuth(app.Config.GetOpsAPIKey()))

	ctx := &apphttp.RouterContext{
		Engine: engine,
		V1:     v1,
		Ops:    ops,
	}

	for _, m := range app.Modules {
		m.RegisterRoutes(ctx)
		app.Logger.Info("module routes registered", "module", m.Name())
	}

	return engine
}

// opsKeyAuth guards operator endpoints with a static key from config.
// With no key configured the ops surface is disabled entirely.
func opsKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		provided := strings.TrimSpace(c.GetHeader("X-Ops-Key"))
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid ops key"})
			return
		}
		c.Next()
	}
}

func corsConfig(app *apphttp.App) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-ID", "X-Ops-Key"},
		MaxAge:       12 * time.Hour,
	}
	if app.Config.GetCORSAllowAll() {
		cfg.AllowAllOrigins = true
	} else if origins := app.Config.GetCORSOrigins(); len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		// Webhook-only deployments have no browser clients.
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cfg)
}
