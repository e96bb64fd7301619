// Package management provides the HTTP management and authentication
// endpoints of the KiteMCP server: health, manual token exchange, token
// status and the remotely triggered login flow.
package management

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/router-for-me/KiteMCP/internal/buildinfo"
	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/constant"
	"github.com/router-for-me/KiteMCP/internal/session"
	"github.com/router-for-me/KiteMCP/internal/stream"
)

// Handler bundles the dependencies of the management endpoints.
type Handler struct {
	cfg      *config.Config
	sessions *session.Manager
	hub      *stream.Hub
}

// NewHandler creates a management handler. The hub may be nil when no event
// stream is running.
func NewHandler(cfg *config.Config, sessions *session.Manager, hub *stream.Hub) *Handler {
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
		hub:      hub,
	}
}

// GetHealth returns the server health summary together with the current
// authentication state.
//
// Endpoint: GET /health
// Authentication: none
func (h *Handler) GetHealth(c *gin.Context) {
	if h == nil || h.sessions == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "server not initialized"})
		return
	}

	st := h.sessions.TokenStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"server":      constant.ServerName,
		"version":     buildinfo.Version,
		"auth_status": st.Status,
		"message":     st.Message,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetRoot identifies the server for probes hitting the bare host.
//
// Endpoint: GET /
// Authentication: none
func (h *Handler) GetRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Kite MCP trading server",
		"status":  "running",
		"version": buildinfo.Version,
	})
}
