package rating

import (
	"context"
	"errors"
	"fmt"

	"github.com/playchess/backend/internal/metrics"
	"github.com/playchess/backend/internal/models"
	"github.com/rs/zerolog"
)

// ErrInvalidResult is returned for malformed results.
var ErrInvalidResult = errors.New("rating: invalid result")

// Result holds both players' updated states after one game.
type Result struct {
	Player   models.RatingRecord `json:"player"`
	Opponent models.RatingRecord `json:"opponent"`
}

type recordOptions struct {
	saveHistory bool
}

// RecordOption tweaks RecordResult.
type RecordOption func(*recordOptions)

// WithoutHistory skips the history append. Used by replays.
func WithoutHistory() RecordOption {
	return func(o *recordOptions) { o.saveHistory = false }
}

// Engine applies results to the rating Store. Serialisation per (player,
// pool) comes from the store's Atomic units, so several engines, in one
// process or many, can share a store.
type Engine struct {
	store   Store
	solver  Solver
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an engine over store. A nil metrics is allowed.
func NewEngine(store Store, solver Solver, log zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   store,
		solver:  solver.normalized(),
		log:     log.With().Str("component", "rating").Logger(),
		metrics: m,
	}
}

// ValidScore reports whether score is a loss, draw or win.
func ValidScore(score float64) bool {
	return score == 0 || score == 0.5 || score == 1
}

// RecordResult updates both players from their pre-game states and appends
// one history record from playerID's perspective. Both ratings and the
// history record are written in one unit; on error none of them is.
func (e *Engine) RecordResult(ctx context.Context, playerID, opponentID string, score float64, pool string, opts ...RecordOption) (*Result, error) {
	if playerID == "" || opponentID == "" || pool == "" || playerID == opponentID || !ValidScore(score) {
		return nil, ErrInvalidResult
	}
	o := recordOptions{saveHistory: true}
	for _, opt := range opts {
		opt(&o)
	}

	var res *Result
	err := e.store.Atomic(ctx, func(tx Tx) error {
		if err := tx.LockPool(ctx, pool, false); err != nil {
			return err
		}
		var err error
		res, err = e.apply(ctx, tx, playerID, opponentID, score, pool, o.saveHistory)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RatingUpdated(pool)
	e.log.Debug().
		Str("pool", pool).
		Str("player", playerID).
		Str("opponent", opponentID).
		Float64("score", score).
		Float64("player_rating", res.Player.Rating).
		Float64("opponent_rating", res.Opponent.Rating).
		Msg("result recorded")
	return res, nil
}

// apply assumes tx already holds the pool lock in either mode.
func (e *Engine) apply(ctx context.Context, tx Tx, playerID, opponentID string, score float64, pool string, saveHistory bool) (*Result, error) {
	recs, err := tx.LockRatings(ctx, pool, playerID, opponentID)
	if err != nil {
		return nil, err
	}
	player, opponent := recs[0], recs[1]

	pState := stateOf(&player)
	oState := stateOf(&opponent)

	pNext, err := e.solver.UpdateOne(pState, oState, score)
	if err != nil {
		return nil, fmt.Errorf("update %s in %s: %w", playerID, pool, err)
	}
	oNext, err := e.solver.UpdateOne(oState, pState, 1-score)
	if err != nil {
		return nil, fmt.Errorf("update %s in %s: %w", opponentID, pool, err)
	}

	res := &Result{
		Player:   withState(player, pNext),
		Opponent: withState(opponent, oNext),
	}
	if err := tx.SetRating(ctx, res.Player); err != nil {
		return nil, err
	}
	if err := tx.SetRating(ctx, res.Opponent); err != nil {
		return nil, err
	}

	if saveHistory {
		err := tx.AddHistory(ctx, models.HistoryRecord{
			PlayerID:   playerID,
			OpponentID: opponentID,
			Score:      score,
			Pool:       pool,
		})
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Recalculate clears pool (every pool when empty) and replays its history in
// insertion order without appending new history. The clear and the replay
// are one unit: a failed replay leaves the previous ratings in place.
func (e *Engine) Recalculate(ctx context.Context, pool string) error {
	var replayed int
	err := e.store.Atomic(ctx, func(tx Tx) error {
		if err := tx.LockPool(ctx, pool, true); err != nil {
			return err
		}
		history, err := tx.GetHistory(ctx, pool)
		if err != nil {
			return err
		}
		if err := tx.ClearRatings(ctx, pool); err != nil {
			return err
		}
		for _, h := range history {
			if _, err := e.apply(ctx, tx, h.PlayerID, h.OpponentID, h.Score, h.Pool, false); err != nil {
				return fmt.Errorf("replay history %d: %w", h.ID, err)
			}
		}
		replayed = len(history)
		return nil
	})
	if err != nil {
		return err
	}

	e.metrics.RatingsRecalculated(pool)
	e.log.Info().Str("pool", pool).Int("records", replayed).Msg("ratings recalculated")
	return nil
}

// GetRatings returns every pool rating for playerID, or ErrNotFound.
func (e *Engine) GetRatings(ctx context.Context, playerID string) ([]models.RatingRecord, error) {
	recs, err := e.store.GetRatingsByUser(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs, nil
}

// Ping checks the underlying store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func stateOf(rec *models.RatingRecord) State {
	return State{Rating: rec.Rating, RD: rec.RD, Volatility: rec.Volatility}
}

func withState(rec models.RatingRecord, s State) models.RatingRecord {
	rec.Rating = s.Rating
	rec.RD = s.RD
	rec.Volatility = s.Volatility
	return rec
}
