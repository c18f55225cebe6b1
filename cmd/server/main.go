package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/playchess/backend/internal/api"
	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/database"
	"github.com/playchess/backend/internal/logger"
	"github.com/playchess/backend/internal/matchmaking"
	"github.com/playchess/backend/internal/metrics"
	"github.com/playchess/backend/internal/migrations"
	"github.com/playchess/backend/internal/rating"
	"github.com/playchess/backend/internal/redis"
	"github.com/playchess/backend/internal/ws"
)

const connectTimeout = 5 * time.Second

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server exited cleanly")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	m := metrics.New()

	// Redis backs the queue and carries match events between instances.
	var rdb *goredis.Client
	if cfg.QueueStore == "redis" {
		client, err := redis.Connect(ctx, cfg.RedisURL, connectTimeout)
		if err != nil {
			return err
		}
		defer client.Close()
		rdb = client
		log.Info().Msg("connected to redis")
	}

	ratingStore, closeStore, err := openRatingStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Constructors tag their own component field; pass the root logger.
	hub := ws.NewHub(log)
	notifier := matchmaking.NewNotifier(log)
	notifier.Subscribe(matchmaking.LogSubscriber(log))

	var queueStore matchmaking.QueueStore
	if rdb != nil {
		queueStore = matchmaking.NewRedisQueueStore(rdb, log)
		// The relay delivers to this instance's sockets, including its own matches.
		notifier.Subscribe(matchmaking.NewRedisPublisher(rdb, cfg.MatchEventsChannel, log))
	} else {
		log.Warn().Msg("using in-memory queue store; queue state is lost on restart")
		queueStore = matchmaking.NewMemoryQueueStore()
		notifier.Subscribe(hub)
	}

	matcher := matchmaking.NewEngine(queueStore, notifier, log,
		matchmaking.WithWindow(matchmaking.Window{Base: cfg.MatchWindowBase, Growth: cfg.MatchWindowGrowth}),
		matchmaking.WithMetrics(m),
	)
	ratings := rating.NewEngine(ratingStore, solverFromConfig(cfg), log, m)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(log))
	api.SetupRoutes(router, api.Deps{
		Config:      cfg,
		Log:         log,
		Matchmaking: matcher,
		Ratings:     ratings,
		Hub:         hub,
		Metrics:     m,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("starting playchess matchmaking server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if rdb != nil {
		g.Go(func() error {
			err := hub.RunMatchEventRelay(gctx, rdb, cfg.MatchEventsChannel)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openRatingStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (rating.Store, func(), error) {
	if cfg.RatingStore != "postgres" {
		log.Warn().Msg("using in-memory rating store; ratings are lost on restart")
		return rating.NewMemoryStore(), func() {}, nil
	}

	if cfg.MigrateOnStart {
		log.Info().Msg("running migrations on startup")
		if err := migrations.RunMigrations(cfg.DatabaseURL, "migrations", log); err != nil {
			return nil, nil, err
		}
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL, connectTimeout)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("connected to postgres")
	return rating.NewPostgresStore(db), func() { db.Close() }, nil
}

func solverFromConfig(cfg *config.Config) rating.Solver {
	return rating.Solver{
		Tau:           cfg.GlickoTau,
		Tolerance:     cfg.GlickoTolerance,
		MaxIterations: cfg.GlickoMaxIterations,
	}
}
