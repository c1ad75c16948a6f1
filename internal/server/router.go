package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microloan/backend/internal/auth"
	"github.com/microloan/backend/internal/config"
	"github.com/microloan/backend/internal/http/handlers"
	"github.com/microloan/backend/internal/http/middleware"
	"github.com/microloan/backend/internal/observability"
	"github.com/microloan/backend/internal/version"
	"github.com/microloan/backend/internal/ws"
)

type Dependencies struct {
	Pinger         handlers.Pinger
	AuthHandler    *handlers.AuthHandler
	LoanHandler    *handlers.LoanHandler
	PaymentHandler *handlers.PaymentHandler
	WSHandler      *ws.Handler
	JWTManager     *auth.JWTManager
	RateLimiter    middleware.Limiter
}

func NewRouter(cfg config.Config, logger *slog.Logger, deps Dependencies) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(middleware.RequestBodyLimit(cfg.RequestBodyLimitBytes))

	health := handlers.NewHealthHandler(deps.Pinger, version.Version)
	// The Redis limiter doubles as the cache readiness probe when configured.
	if p, ok := deps.RateLimiter.(handlers.Pinger); ok {
		health.WithOptional("redis", p)
	}
	meta := handlers.NewMetaHandler(handlers.MetaInfo{
		Env:         cfg.Env,
		Version:     version.Version,
		StoreMode:   cfg.StoreMode,
		GatewayMode: cfg.GatewayMode,
		Policy: handlers.LoanPolicy{
			DefaultLimit:   cfg.LoanDefaultLimit,
			LimitIncrement: cfg.LoanLimitIncrement,
			LimitCap:       cfg.LoanLimitCap,
		},
	})

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/v1/meta", meta.GetMeta)

	if deps.JWTManager == nil {
		return withNoRoute(r)
	}
	requireAuth := middleware.RequireAuth(deps.JWTManager)
	limit := func(scope string) gin.HandlerFunc {
		return middleware.RateLimit(deps.RateLimiter, scope, cfg.RateLimitPerMinute, logger)
	}

	api := r.Group("/api")

	if deps.AuthHandler != nil {
		authGroup := api.Group("/auth")
		authGroup.POST("/register", limit("register"), deps.AuthHandler.Register)
		authGroup.POST("/login", limit("login"), deps.AuthHandler.Login)
		authGroup.POST("/refresh", deps.AuthHandler.Refresh)
		authGroup.POST("/logout", deps.AuthHandler.Logout)
		authGroup.GET("/me", requireAuth, deps.AuthHandler.Me)
	}

	if deps.LoanHandler != nil {
		loans := api.Group("/loans")
		loans.POST("/preview", deps.LoanHandler.Preview)

		protected := loans.Group("")
		protected.Use(requireAuth)
		protected.POST("/apply", limit("loan_apply"), deps.LoanHandler.Apply)
		protected.GET("/history", deps.LoanHandler.History)
		protected.GET("/:loanId", deps.LoanHandler.GetLoan)
	}

	if deps.PaymentHandler != nil {
		payments := api.Group("/payments")
		payments.POST("/webhook", deps.PaymentHandler.Webhook)

		protected := payments.Group("")
		protected.Use(requireAuth)
		protected.POST("/initialize", limit("payment_initialize"), deps.PaymentHandler.Initialize)
		protected.GET("/verify/:reference", deps.PaymentHandler.Verify)
		protected.GET("/transactions", deps.PaymentHandler.Transactions)
	}

	if deps.WSHandler != nil {
		r.GET("/ws", requireAuth, deps.WSHandler.HandleWebSocket)
	}

	return withNoRoute(r)
}

func withNoRoute(r *gin.Engine) *gin.Engine {
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "route not found"})
	})
	return r
}
