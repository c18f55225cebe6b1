package api

import (
	"github.com/gin-gonic/gin"
	"github.com/playchess/backend/internal/api/handlers"
	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/matchmaking"
	"github.com/playchess/backend/internal/metrics"
	"github.com/playchess/backend/internal/middleware"
	"github.com/playchess/backend/internal/rating"
	"github.com/playchess/backend/internal/ws"
	"github.com/rs/zerolog"
)

// Deps are the services the HTTP layer is built from.
type Deps struct {
	Config      *config.Config
	Log         zerolog.Logger
	Matchmaking *matchmaking.Engine
	Ratings     *rating.Engine
	Hub         *ws.Hub
	Metrics     *metrics.Metrics
}

// SetupRoutes configures all API routes. Every route is served at the root
// and again under /api/v1.
func SetupRoutes(router *gin.Engine, d Deps) {
	router.Use(middleware.CORSMiddleware(d.Config))

	if d.Config.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Next()
		})
	}

	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	register(router.Group("/"), d)
	register(router.Group("/api/v1"), d)
}

func register(g *gin.RouterGroup, d Deps) {
	identity := middleware.Identity(d.Config)

	g.GET("/health", handlers.HealthCheck(map[string]handlers.Pinger{
		"queue":   d.Matchmaking,
		"ratings": d.Ratings,
	}))

	queue := g.Group("/queue")
	{
		queue.POST("/join", identity, handlers.JoinQueue(d.Matchmaking, d.Log))
		queue.POST("/leave", identity, handlers.LeaveQueue(d.Matchmaking, d.Log))
		queue.GET("/state", handlers.GetQueueState(d.Matchmaking, d.Log))
		if d.Hub != nil {
			queue.GET("/ws", middleware.WebSocketCORSCheck(d.Config), d.Hub.HandleQueueSocket)
		}
	}

	ratings := g.Group("/ratings")
	{
		ratings.GET("/:userId", handlers.GetRatings(d.Ratings, d.Log))
		// Written by the game service and operators, never by players.
		internal := middleware.InternalOnly(d.Config)
		ratings.POST("/recalc", internal, handlers.Recalculate(d.Ratings, d.Log))
		ratings.POST("/results", internal, handlers.RecordResult(d.Ratings, d.Log))
	}
}
