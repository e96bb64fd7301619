package management

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	kiteauth "github.com/router-for-me/KiteMCP/internal/auth/kite"
	"github.com/router-for-me/KiteMCP/internal/logging"
	"github.com/router-for-me/KiteMCP/internal/session"
	"github.com/router-for-me/KiteMCP/internal/stream"
)

type exchangeRequest struct {
	RequestToken string `json:"request_token"`
}

type loginRequest struct {
	Force bool `json:"force"`
}

// PostAuthExchange completes a login manually: the caller pastes the request
// token (or the whole redirect URL) captured after logging in on another
// device, and the server runs the checksum exchange.
//
// Endpoint: POST /auth/exchange
// Authentication: none; possession of a fresh request token is the credential
func (h *Handler) PostAuthExchange(c *gin.Context) {
	if h == nil || h.sessions == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "server not initialized"})
		return
	}

	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}

	token, err := kiteauth.ParseRequestToken(req.RequestToken)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": fmt.Sprintf("invalid request token: %v", err)})
		return
	}

	if err = h.sessions.ExchangeRequestToken(c.Request.Context(), token); err != nil {
		log.Errorf("management: token exchange failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": kiteauth.GetUserFriendlyMessage(err)})
		return
	}

	h.broadcastAuth(session.StatusValid)
	st := h.sessions.TokenStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message":    "access token generated and saved",
		"expires_at": st.ExpiresAt,
	})
}

// GetTokenStatus reports the stored token state without probing Kite.
//
// Endpoint: GET /v0/management/token-status
// Authentication: management key (when configured)
func (h *Handler) GetTokenStatus(c *gin.Context) {
	if h == nil || h.sessions == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "server not initialized"})
		return
	}
	c.JSON(http.StatusOK, h.sessions.TokenStatus())
}

// PostLogin starts the automated browser login in the background and returns
// immediately. Callers poll token-status to observe completion. A second
// login request while one is pending is refused.
//
// Endpoint: POST /v0/management/login
// Authentication: management key (when configured)
func (h *Handler) PostLogin(c *gin.Context) {
	if h == nil || h.sessions == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "server not initialized"})
		return
	}

	if h.sessions.LoginInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "error": "a login flow is already in progress"})
		return
	}

	var req loginRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	timeout := h.cfg.Callback.WaitTimeout()
	go func() {
		// The flow outlives the HTTP request, so it gets its own context
		// with headroom beyond the callback wait itself. The request ID keeps
		// the flow's brokerage calls correlated in the logs.
		ctx, cancel := context.WithTimeout(context.Background(), timeout+30*time.Second)
		defer cancel()
		ctx, requestID := logging.EnsureRequestID(ctx)

		if _, err := h.sessions.AuthenticateFullyAutomated(ctx, timeout, req.Force); err != nil {
			log.WithField("request_id", requestID).Errorf("management: login flow failed: %v", err)
			return
		}
		h.broadcastAuth(session.StatusValid)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status":          "started",
		"login_url":       h.sessions.LoginURL(),
		"timeout_seconds": int(timeout.Seconds()),
	})
}

func (h *Handler) broadcastAuth(state string) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(stream.NewEvent(stream.EventTypeAuth, map[string]any{"state": state}))
}
