// Command recalc rebuilds ratings from the stored game history, for use after
// a formula or parameter change. It talks to the database directly, so the
// server does not need to be running.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/database"
	"github.com/playchess/backend/internal/logger"
	"github.com/playchess/backend/internal/rating"
)

func main() {
	pool := flag.String("pool", os.Getenv("RECALC_POOL"), "pool to recalculate (empty = every pool)")
	timeout := flag.Duration("timeout", 10*time.Minute, "give up after this long")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	engine := rating.NewEngine(
		rating.NewPostgresStore(db),
		rating.Solver{Tau: cfg.GlickoTau, Tolerance: cfg.GlickoTolerance, MaxIterations: cfg.GlickoMaxIterations},
		log,
		nil,
	)

	start := time.Now()
	if err := engine.Recalculate(ctx, *pool); err != nil {
		log.Fatal().Err(err).Str("pool", *pool).Msg("recalculation failed")
	}

	scope := *pool
	if scope == "" {
		scope = "all"
	}
	log.Info().Str("pool", scope).Dur("took", time.Since(start)).Msg("ratings recalculated")
}
