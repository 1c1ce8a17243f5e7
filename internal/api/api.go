// Package api wires cmd/sacksd's gin.Engine: the thin HTTP surface that
// wraps the same ProcessFileAsync contract the CLI and orchestrator expose,
// per SPEC_FULL.md's "HTTP surface" supplement. Adapted from the teacher's
// internal/api/api.go router-assembly shape (versioned group, per-domain
// sub-groups), generalized from PO/stock-health routes to the single
// process surface.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/thestrul/sacks/internal/api/handlers"
	"github.com/thestrul/sacks/internal/cache"
	"github.com/thestrul/sacks/internal/orchestrator"
)

// Services bundles the dependencies NewRouter wires into handlers.
type Services struct {
	Orchestrator *orchestrator.Orchestrator
	ResultCache  cache.ResultCache
	AllowOrigins []string
}

// NewRouter builds the gin.Engine exposing POST /v1/process, GET
// /v1/process/status, and GET /health.
func NewRouter(services *Services) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(services.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = services.AllowOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", handlers.Health)

	if services != nil && services.Orchestrator != nil {
		resultCache := services.ResultCache
		if resultCache == nil {
			resultCache = cache.NewNoopResultCache()
		}
		processHandler := handlers.NewProcessHandler(services.Orchestrator, resultCache)

		v1 := router.Group("/v1")
		{
			v1.POST("/process", processHandler.Process)
			v1.GET("/process/status", processHandler.Status)
		}
	}

	return router
}
