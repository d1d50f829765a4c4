package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/nutriscan/nutriscan/internal/auth"
	"github.com/nutriscan/nutriscan/internal/cache"
	"github.com/nutriscan/nutriscan/internal/config"
	"github.com/nutriscan/nutriscan/internal/http/handlers"
	"github.com/nutriscan/nutriscan/internal/http/middlewares"
	"github.com/nutriscan/nutriscan/internal/notifications"
	"github.com/nutriscan/nutriscan/internal/observability"
)

// AIClient is what the router needs from the prediction client.
type AIClient interface {
	handlers.Analyzer
	handlers.AIHealthChecker
}

// Deps carries everything the router wires together. Repos are interfaces so
// tests can run the whole surface against the memory implementations.
type Deps struct {
	Cfg      config.Config
	Log      *slog.Logger
	JWT      *auth.Manager
	Users    handlers.UserStore
	Assess   handlers.AssessmentStore
	Consents handlers.ConsentStore
	AI       AIClient
	Mailer   notifications.Mailer
	Cache    cache.Store
	Prom     *observability.Prom
	PromReg  *prometheus.Registry
	PingDB   func() error
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(d.Log))
	r.Use(otelgin.Middleware("nutriscan-api"))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Cfg.AllowedOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(1 << 20))

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	// operational endpoints
	h := handlers.NewHealthHandler(d.PingDB)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.PromReg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.PromReg, promhttp.HandlerOpts{})))
	}

	// handlers
	authHandler := handlers.NewAuthHandler(d.Users, d.JWT, d.Mailer, d.Log)
	assessHandler := handlers.NewAssessmentsHandler(d.Assess, d.AI)
	consentHandler := handlers.NewConsentHandler(d.Consents)
	aiHandler := handlers.NewAIHandler(d.AI)

	authMw := middlewares.NewAuthMiddleware(d.JWT)

	// sensitive endpoints share one strict fixed-window limiter
	strict := middlewares.NewRateLimiter(10, 15*time.Minute)
	// general authenticated traffic gets a smoother token bucket
	throttle := middlewares.NewThrottle(20, 40)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", strict.Middleware(middlewares.KeyByIP), authHandler.Register)
		authGroup.POST("/login", strict.Middleware(middlewares.KeyByIP), authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/verify-email", authHandler.VerifyEmail)
		authGroup.POST("/resend-verification", authMw.RequireAuth(), authHandler.ResendVerification)
		authGroup.POST("/forgot-password", strict.Middleware(middlewares.KeyByIP), authHandler.ForgotPassword)
		authGroup.POST("/reset-password", strict.Middleware(middlewares.KeyByIP), authHandler.ResetPassword)

		me := authGroup.Group("/me", authMw.RequireAuth())
		{
			me.GET("", authHandler.Me)
			me.PUT("", authHandler.UpdateMe)
			me.DELETE("", authHandler.DeleteMe)
		}
	}

	assessGroup := api.Group("/assessments",
		authMw.RequireAuth(),
		throttle.Middleware(middlewares.KeyByUserOrIP),
	)
	{
		// writes need a verified address, reads and deletion do not
		verified := authMw.RequireVerified()

		assessGroup.POST("", verified, assessHandler.Create)

		if d.Cache != nil {
			assessGroup.GET("", middlewares.ResponseCache(d.Cache), assessHandler.List)
		} else {
			assessGroup.GET("", assessHandler.List)
		}

		assessGroup.GET("/:id", assessHandler.Get)
		assessGroup.PUT("/:id", verified, assessHandler.Update)
		assessGroup.DELETE("/:id", assessHandler.Delete)
		assessGroup.POST("/:id/analyze", verified, assessHandler.Analyze)
	}

	consentGroup := api.Group("/consent", authMw.RequireAuth())
	{
		consentGroup.GET("", consentHandler.Get)
		consentGroup.PUT("", consentHandler.Update)
	}

	api.GET("/ai/health", aiHandler.Health)

	return r
}
