package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the versioned API. All notification routes require a
// valid bearer token; health stays open for probes.
func NewRouter(h *Handlers, jwtSecret string, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	v1 := r.Group("/api/v1", Auth(jwtSecret))
	registerRoutes(v1, h)
	return r
}

func registerRoutes(g *gin.RouterGroup, h *Handlers) {
	n := g.Group("/notifications")
	n.GET("", h.list)
	n.GET("/unread-count", h.unreadCount)
	n.GET("/stats", h.stats)
	n.POST("/:id/acknowledge", h.acknowledge)
	n.PUT("/:id/read", h.markRead)
	n.PUT("/read-all", h.markAllRead)
}

func requestLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() >= 500 {
			log.Warn("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Int("status", c.Writer.Status()),
			)
		}
	}
}
