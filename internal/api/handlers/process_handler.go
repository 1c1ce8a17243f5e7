// Package handlers holds cmd/sacksd's gin.HandlerFunc implementations,
// adapted from the teacher's internal/api/handlers/po_handler.go request
// shape (validate -> run -> JSON response), generalized from PO upload
// handling to the single ProcessFileAsync contract of spec.md §6.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/thestrul/sacks/internal/cache"
	"github.com/thestrul/sacks/internal/orchestrator"
)

// ProcessHandler exposes the orchestrator over HTTP.
type ProcessHandler struct {
	orch  *orchestrator.Orchestrator
	cache cache.ResultCache
}

// NewProcessHandler builds a ProcessHandler. Pass cache.NewNoopResultCache()
// when result caching is disabled.
func NewProcessHandler(orch *orchestrator.Orchestrator, resultCache cache.ResultCache) *ProcessHandler {
	return &ProcessHandler{orch: orch, cache: resultCache}
}

type processRequest struct {
	Path string `json:"path" binding:"required"`
}

// Process handles POST /v1/process: runs ProcessFile synchronously and
// returns the resulting ProcessingResult as JSON, per spec.md §6.
func (h *ProcessHandler) Process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.orch.ProcessFile(c.Request.Context(), req.Path)

	if h.cache != nil {
		if err := h.cache.Set(context.Background(), req.Path, result); err != nil {
			log.Warn().Err(err).Str("path", req.Path).Msg("failed to cache processing result")
		}
	}

	status := http.StatusOK
	if result.Status == orchestrator.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

// Status handles GET /v1/process/status: returns the last cached result for
// a file path without re-running the pipeline, so HTTP polls for a
// long-running file don't hit postgres.
func (h *ProcessHandler) Status(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path query parameter is required"})
		return
	}

	result, found, err := h.cache.Get(c.Request.Context(), path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cached result for path"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health handles GET /health.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
