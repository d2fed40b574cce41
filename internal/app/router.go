package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"dbaas.io/workflow/internal/api/handlers"
	"dbaas.io/workflow/internal/api/middleware"
	"dbaas.io/workflow/internal/config"
)

// defaultAllowedOrigins is used when no origin is configured.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	v1 := router.Group("/api/v1")
	v1.GET("/health/live", server.GetLiveness)
	v1.GET("/health/ready", server.GetReadiness)
	v1.GET("/restores", server.ListRestores)
	v1.GET("/restores/:id", server.GetRestore)
	return router
}

// buildCORSConfig turns server settings into a cors.Config. A wildcard
// origin is only honoured with UnsafeAllowAllOrigins, and never together
// with credentials.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		if o == "*" || o == "" {
			continue
		}
		origins = append(origins, o)
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	c.AllowOrigins = origins
	return c
}
