package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"hackcbs/vectorgate/internal/orchestrator"
)

// orchestratorService is the subset of *orchestrator.Orchestrator used by the
// HTTP handlers. Declaring it as an interface allows test doubles to be injected.
type orchestratorService interface {
	RunBootstrap(ctx context.Context) (*orchestrator.BootstrapResult, error)
	RunDeepHealth(ctx context.Context) map[string]orchestrator.ProbeResult
	IsReady() bool
	IsBootstrapInProgress() bool
	LastResult() *orchestrator.BootstrapResult
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	orchestrator orchestratorService
}

// Bootstrap handles POST /api/v1/bootstrap.
// It returns 202 when a new run is started in the background, or 409 if one
// is already in progress.
func (h *Handler) Bootstrap(c *gin.Context) {
	if h.orchestrator.IsBootstrapInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": orchestrator.StatusInProgress})
		return
	}
	go func() {
		//nolint:errcheck
		h.orchestrator.RunBootstrap(context.Background()) //nolint:contextcheck
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Index handles GET /api/v1/index.
// It returns the most recent bootstrap result, or 404 before the first run.
func (h *Handler) Index(c *gin.Context) {
	result := h.orchestrator.LastResult()
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "not-bootstrapped"})
		return
	}
	withLogAttrs(c, "run_id", result.RunID)
	if result.Index != nil {
		withLogAttrs(c, "index", result.Index.Name)
	}
	c.JSON(http.StatusOK, result)
}

// Health handles GET /health.
// Liveness probe; always 200.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes every configured dependency and returns 200 only when all are OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.orchestrator.RunDeepHealth(c.Request.Context())

	var failing []string
	for name, p := range probes {
		if !p.OK {
			failing = append(failing, name)
		}
	}

	status := "healthy"
	code := http.StatusOK
	if len(failing) > 0 {
		sort.Strings(failing)
		withLogAttrs(c, "failing", failing)
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 only after a successful bootstrap; 503 otherwise.
func (h *Handler) Ready(c *gin.Context) {
	if h.orchestrator.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
