package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/outreachpass/passhub/internal/cache"
	"github.com/outreachpass/passhub/internal/config"
	"github.com/outreachpass/passhub/internal/http/handlers"
	"github.com/outreachpass/passhub/internal/http/middlewares"
	"github.com/outreachpass/passhub/internal/observability"
	"github.com/outreachpass/passhub/internal/repo/postgres"
	"github.com/outreachpass/passhub/internal/tracking"
)

type RouterDeps struct {
	Pool       *pgxpool.Pool
	Prom       *observability.Prom
	Dispatches *tracking.Store
}

func NewRouter(cfg config.Config, deps RouterDeps) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("passhub-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.TenantHeader())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware([]string{cfg.PublicBaseURL}))
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health
	ping := func() error {
		if deps.Pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return deps.Pool.Ping(ctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// wire up repositories
	jobsRepo := postgres.NewJobsRepo(deps.Pool, deps.Prom)
	cardsRepo := postgres.NewCardsRepo(deps.Pool, deps.Prom)
	eventsRepo := postgres.NewEmailEventsRepo(deps.Pool, deps.Prom)

	jobsHandler := handlers.NewJobsHandler(jobsRepo, cardsRepo)
	cardsHandler := handlers.NewCardsHandler(cardsRepo, cache.New(30*time.Second))
	trackingHandler := handlers.NewTrackingHandler(deps.Dispatches, eventsRepo, deps.Prom)
	adminHandler := handlers.NewAdminJobsHandler(jobsRepo)

	issueLimiter := middlewares.NewRateLimiter(30, time.Minute)
	// tracking hits arrive from mail clients in bursts; limit by source IP
	trackLimiter := middlewares.NewRateLimiter(300, time.Minute)

	// issuance
	r.POST("/cards/:id/issue",
		middlewares.RequireJSON(),
		issueLimiter.RateLimiterMiddleware(middlewares.KeyByTenantOrIP),
		jobsHandler.IssuePass,
	)
	r.GET("/jobs/:id", jobsHandler.GetJob)

	// public card surface
	r.GET("/cards/:id", cardsHandler.GetCard)
	r.GET("/cards/:id/vcard", cardsHandler.GetVCard)

	// email tracking
	track := r.Group("/track/email", trackLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	track.GET("/open/:mid", trackingHandler.Open)
	track.GET("/click", trackingHandler.Click)

	// ops
	admin := r.Group("/admin")
	admin.GET("/jobs", adminHandler.List)
	admin.GET("/jobs/:id", adminHandler.Get)
	admin.POST("/jobs/:id/retry", adminHandler.Retry)
	admin.POST("/jobs/reprocess-dead", adminHandler.ReprocessDead)

	return r
}
