// Package api is the thin HTTP adapter over the reconciliation engine:
// route wiring, request validation, and the websocket alert stream. No
// reconciliation logic lives here.
package api

import (
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/internal/engine"
	"github.com/crosslens/gst-recon-engine/internal/gstin"
	"github.com/crosslens/gst-recon-engine/internal/store"
)

var periodPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])\d{4}$`)

type APIHandler struct {
	reconciler *engine.Reconciler
	graphStore store.GraphStore
	wsHub      *Hub
}

func SetupRouter(rec *engine.Reconciler, graphStore store.GraphStore, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// CORS, configurable via ALLOWED_ORIGINS (comma-separated; empty or * allows all).
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{reconciler: rec, graphStore: graphStore, wsHub: wsHub}

	api := r.Group("/api/v1")
	{
		api.POST("/reconcile/:gstin/:period", handler.handleReconcile)
		api.POST("/reconcile/:gstin/:period/level1", handler.handleReconcileLevel1)
		api.GET("/entities", handler.handleListEntities)
		api.GET("/entities/:gstin", handler.handleGetEntity)
		api.GET("/periods", handler.handleListPeriods)
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// scope validates and returns the path parameters shared by the
// reconciliation endpoints.
func (h *APIHandler) scope(c *gin.Context) (string, string, bool) {
	id := strings.ToUpper(c.Param("gstin"))
	period := c.Param("period")
	if !gstin.Validate(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid GSTIN"})
		return "", "", false
	}
	if !periodPattern.MatchString(period) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period, expected MMYYYY"})
		return "", "", false
	}
	return id, period, true
}

// handleReconcile runs the full four-level pipeline for a GSTIN/period.
// Prior findings for the scope are cleared first; the engine itself never
// deletes findings.
func (h *APIHandler) handleReconcile(c *gin.Context) {
	id, period, ok := h.scope(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.graphStore.ClearMismatches(ctx, id, period); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear prior findings", "details": err.Error()})
		return
	}
	summary, err := h.reconciler.RunFull(ctx, id, period)
	if err != nil {
		logrus.Errorf("reconciliation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed", "details": err.Error()})
		return
	}
	for _, mm := range summary.Mismatches {
		if err := h.graphStore.UpsertMismatch(ctx, mm); err != nil {
			logrus.Warnf("failed to persist mismatch %s: %v", mm.MismatchID, err)
		}
	}
	c.JSON(http.StatusOK, summary)
}

// handleReconcileLevel1 runs only the matcher, for fast interactive use.
func (h *APIHandler) handleReconcileLevel1(c *gin.Context) {
	id, period, ok := h.scope(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.graphStore.ClearMismatches(ctx, id, period); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear prior findings", "details": err.Error()})
		return
	}
	summary, err := h.reconciler.RunLevel1Only(ctx, id, period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "level 1 matching failed", "details": err.Error()})
		return
	}
	for _, mm := range summary.Mismatches {
		if err := h.graphStore.UpsertMismatch(ctx, mm); err != nil {
			logrus.Warnf("failed to persist mismatch %s: %v", mm.MismatchID, err)
		}
	}
	c.JSON(http.StatusOK, summary)
}

func (h *APIHandler) handleListEntities(c *gin.Context) {
	ids, err := h.reconciler.ListGSTINs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entities", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"gstins": ids, "count": len(ids)})
}

func (h *APIHandler) handleGetEntity(c *gin.Context) {
	id := strings.ToUpper(c.Param("gstin"))
	if !gstin.Validate(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid GSTIN"})
		return
	}
	entity, err := h.graphStore.FetchEntity(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch entity", "details": err.Error()})
		return
	}
	if entity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (h *APIHandler) handleListPeriods(c *gin.Context) {
	periods, err := h.reconciler.ListPeriods(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list periods", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods})
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "GST Reconciliation Engine v1.0",
		"levels": gin.H{
			"level1_matching":    true,
			"level2_itc_chain":   true,
			"level3_circular":    true,
			"level4_propagation": true,
		},
	})
}
