// Package api assembles the HTTP server of KiteMCP: the MCP tool endpoint,
// the management and auth surface, the Prometheus exposition and the
// websocket order event feed, all behind shared logging middleware.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiteMCP/internal/api/handlers/management"
	"github.com/router-for-me/KiteMCP/internal/api/handlers/mcp"
	"github.com/router-for-me/KiteMCP/internal/api/middleware"
	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/logging"
	"github.com/router-for-me/KiteMCP/internal/metrics"
	"github.com/router-for-me/KiteMCP/internal/orders"
	"github.com/router-for-me/KiteMCP/internal/session"
	"github.com/router-for-me/KiteMCP/internal/stream"
)

// Server hosts the HTTP surface. The configuration pointer is swapped on hot
// reload; only fields that are safe to change at runtime are read from it
// after startup (currently the management key).
type Server struct {
	engine   *gin.Engine
	srv      *http.Server
	sessions *session.Manager
	hub      *stream.Hub

	mu  sync.RWMutex
	cfg *config.Config
}

// New builds the server and registers all routes. The hub may be nil, in
// which case the websocket feed route is not registered.
func New(cfg *config.Config, sessions *session.Manager, ordersEngine *orders.Engine, hub *stream.Hub, requestLogger logging.RequestLogger) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	engine.Use(middleware.RequestLoggingMiddleware(requestLogger))

	s := &Server{
		engine:   engine,
		sessions: sessions,
		hub:      hub,
		cfg:      cfg,
	}

	mgmtHandler := management.NewHandler(cfg, sessions, hub)
	mcpHandler := mcp.NewHandler(sessions, ordersEngine, hub)

	engine.GET("/", mgmtHandler.GetRoot)
	engine.GET("/health", mgmtHandler.GetHealth)
	engine.POST("/mcp", mcpHandler.Handle)
	engine.POST("/auth/exchange", mgmtHandler.PostAuthExchange)

	protected := engine.Group("", s.requireManagementKey())
	protected.GET("/metrics", gin.WrapH(metrics.Handler()))
	if hub != nil {
		protected.GET("/ws/orders", s.handleOrderStream)
	}

	mgmt := protected.Group("/v0/management")
	mgmt.GET("/token-status", mgmtHandler.GetTokenStatus)
	mgmt.POST("/login", mgmtHandler.PostLogin)

	s.srv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           engine,
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Stop is called. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	log.Infof("api: listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests and disconnects stream subscribers.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		if err := s.hub.Stop(ctx); err != nil {
			log.Warnf("api: failed to stop event hub: %v", err)
		}
	}
	return s.srv.Shutdown(ctx)
}

// UpdateConfig swaps the active configuration after a hot reload. Listener
// address changes require a restart and are ignored here.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) managementKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return ""
	}
	return s.cfg.ManagementKey
}

// requireManagementKey guards the management routes. With no key configured
// the check is disabled, which is the expected single-user local setup.
func (s *Server) requireManagementKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := s.managementKey()
		if key == "" {
			c.Next()
			return
		}

		provided := strings.TrimSpace(c.GetHeader("X-Management-Key"))
		if provided == "" {
			authz := strings.TrimSpace(c.GetHeader("Authorization"))
			const prefix = "bearer "
			if len(authz) > len(prefix) && strings.EqualFold(authz[:len(prefix)], prefix) {
				provided = strings.TrimSpace(authz[len(prefix):])
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "management key required"})
			return
		}
		c.Next()
	}
}

// handleOrderStream upgrades the connection and hands it to the hub. The
// per-request log line is suppressed: a websocket lives for hours and the
// line would only appear at teardown with a meaningless latency.
func (s *Server) handleOrderStream(c *gin.Context) {
	logging.SkipGinRequestLogging(c)
	s.hub.ServeHTTP(c.Writer, c.Request)
}
