package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbushost/provision-service/internal/config"
)

// RateLimiter is a simple in-memory sliding-window limiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("userID")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

type Server struct {
	router       *gin.Engine
	handler      *Handler
	adminHandler *AdminHandler
	cfg          *config.Config
	db           *pgxpool.Pool
	jwtSecret    string
}

// Read-API rate limit: 60 requests per user per minute.
var userRateLimiter = NewRateLimiter(60, time.Minute)

// Webhook ingress limit: WHMCS retries aggressively on timeouts, 120 per IP
// per minute absorbs bursts without letting a runaway loop flood the queue.
var webhookRateLimiter = NewRateLimiter(120, time.Minute)

func NewServer(cfg *config.Config, db *pgxpool.Pool, handler *Handler, adminHandler *AdminHandler, jwtSecret string) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:       router,
		handler:      handler,
		adminHandler: adminHandler,
		cfg:          cfg,
		db:           db,
		jwtSecret:    jwtSecret,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "provision-service",
		})
	})

	// Prometheus metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Webhook ingress - called by the billing panel
	webhooks := s.router.Group("/api/webhooks")
	webhooks.Use(WebhookAuthMiddleware(s.cfg.Webhook.Secret))
	webhooks.Use(RateLimitMiddleware(webhookRateLimiter))
	{
		webhooks.POST("/whmcs", s.handler.HandleWebhook)
	}

	// Internal API - operations surface, shared-secret auth
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		// Server lifecycle
		internal.POST("/servers/:service_id/actions", s.handler.ServerAction)
		internal.GET("/servers/:service_id", s.handler.GetServer)
		internal.GET("/servers/:service_id/actions", s.handler.ListServerActions)
		internal.GET("/servers", s.handler.ListServers)

		// Delivery inspection
		internal.GET("/deliveries", s.handler.ListDeliveries)
		internal.GET("/deliveries/:id", s.handler.GetDelivery)
	}

	// Internal Admin API - configuration surface
	internalAdmin := s.router.Group("/api/internal/admin")
	internalAdmin.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		internalAdmin.POST("/providers", s.adminHandler.CreateProvider)
		internalAdmin.GET("/providers", s.adminHandler.ListProviders)
		internalAdmin.PATCH("/providers/:id", s.adminHandler.UpdateProvider)

		internalAdmin.POST("/credentials", s.adminHandler.CreateCredential)
		internalAdmin.GET("/credentials", s.adminHandler.ListCredentials)
		internalAdmin.POST("/credentials/:id/rotate", s.adminHandler.RotateCredential)

		internalAdmin.POST("/mappings", s.adminHandler.CreateMapping)
		internalAdmin.GET("/mappings", s.adminHandler.ListMappings)

		internalAdmin.GET("/audit", s.adminHandler.ListAuditLog)

		// DB Browser API
		dbAdminHandler := NewDBAdminHandler(s.db, s.cfg.Database.Schema)
		dbAdmin := internalAdmin.Group("/db")
		{
			dbAdmin.GET("/tables", dbAdminHandler.ListTables)
			dbAdmin.GET("/tables/:table/rows", dbAdminHandler.QueryRows)
		}
	}

	// Read API - JWT authenticated, for customer-facing portals
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.jwtSecret))
	user.Use(RateLimitMiddleware(userRateLimiter))
	{
		user.GET("/servers", s.handler.ListServers)
		user.GET("/servers/:service_id", s.handler.GetServer)
		user.GET("/servers/:service_id/actions", s.handler.ListServerActions)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the underlying gin engine, used for graceful shutdown via
// http.Server and in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
