package matchmaking

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/playchess/backend/internal/metrics"
	"github.com/playchess/backend/internal/models"
	"github.com/rs/zerolog"
)

// Window is the acceptable rating gap as a function of the candidate's wait:
// Base + Growth per second waited.
type Window struct {
	Base   float64
	Growth float64
}

// DefaultWindow starts at ±50 and widens by 50 points per second.
func DefaultWindow() Window {
	return Window{Base: 50, Growth: 50}
}

// At returns the window after wait. Negative waits count as zero.
func (w Window) At(wait time.Duration) float64 {
	secs := wait.Seconds()
	if secs < 0 {
		secs = 0
	}
	return w.Base + secs*w.Growth
}

// JoinRequest asks to queue PlayerID in Mode.
type JoinRequest struct {
	PlayerID string
	Mode     string
	Rating   float64
	Region   string
}

// JoinResult reports whether the join formed a match.
type JoinResult struct {
	Matched  bool   `json:"matched"`
	Opponent string `json:"opponent,omitempty"`
	MatchID  string `json:"matchId,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

func WithWindow(w Window) Option {
	return func(e *Engine) { e.window = w }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine pairs queued players. The first candidate in store order whose
// rating lies inside its wait-widened window wins; candidates are not ranked
// by proximity.
type Engine struct {
	store    QueueStore
	notifier *Notifier
	window   Window
	now      func() time.Time
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

func NewEngine(store QueueStore, notifier *Notifier, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		window:   DefaultWindow(),
		now:      time.Now,
		log:      log.With().Str("component", "matchmaker").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// JoinQueue enqueues the player, then scans the mode's queue for a partner.
// The requester is enqueued first so a concurrent joiner can find it even if
// this call finds nobody.
func (e *Engine) JoinQueue(ctx context.Context, req JoinRequest) (JoinResult, error) {
	now := e.now()
	entry := models.QueueEntry{
		PlayerID:   req.PlayerID,
		Rating:     req.Rating,
		EnqueuedAt: now,
		Region:     req.Region,
	}
	if err := e.store.Add(ctx, req.Mode, entry); err != nil {
		return JoinResult{}, fmt.Errorf("join queue: %w", err)
	}
	e.metrics.QueueJoined(req.Mode)

	candidates, err := e.store.List(ctx, req.Mode)
	if err != nil {
		// The caller sees a failed join, so do not leave the player queued.
		if _, rerr := e.store.Remove(ctx, req.Mode, req.PlayerID); rerr != nil {
			e.log.Error().Err(rerr).Str("mode", req.Mode).Str("player", req.PlayerID).Msg("undo enqueue failed")
		}
		return JoinResult{}, fmt.Errorf("scan queue: %w", err)
	}

	for _, c := range candidates {
		if c.PlayerID == req.PlayerID {
			continue
		}
		wait := now.Sub(c.EnqueuedAt)
		if math.Abs(req.Rating-c.Rating) > e.window.At(wait) {
			continue
		}

		// Fails when the candidate left or was matched meanwhile, or when
		// the requester itself was taken by a concurrent joiner. Either way
		// nothing was removed and scanning on is safe.
		ok, err := e.store.RemovePair(ctx, req.Mode, req.PlayerID, c.PlayerID)
		if err != nil {
			return JoinResult{}, fmt.Errorf("claim match: %w", err)
		}
		if !ok {
			e.log.Debug().Str("mode", req.Mode).Str("player", req.PlayerID).Str("candidate", c.PlayerID).Msg("candidate claim lost")
			continue
		}

		region := c.Region
		if region == "" {
			region = req.Region
		}
		evt := models.MatchFound{
			MatchID: uuid.NewString(),
			Player1: req.PlayerID,
			Player2: c.PlayerID,
			Mode:    req.Mode,
			Region:  region,
		}

		e.metrics.MatchFormed(req.Mode, wait)
		e.log.Info().
			Str("mode", req.Mode).
			Str("match_id", evt.MatchID).
			Str("player", req.PlayerID).
			Str("opponent", c.PlayerID).
			Float64("gap", math.Abs(req.Rating-c.Rating)).
			Dur("candidate_wait", wait).
			Msg("match formed")

		if e.notifier != nil {
			e.notifier.Publish(ctx, evt)
		}
		return JoinResult{Matched: true, Opponent: c.PlayerID, MatchID: evt.MatchID}, nil
	}

	return JoinResult{Matched: false}, nil
}

// LeaveQueue removes the player. Leaving when absent is not an error.
func (e *Engine) LeaveQueue(ctx context.Context, mode, playerID string) (bool, error) {
	removed, err := e.store.Remove(ctx, mode, playerID)
	if err != nil {
		return false, fmt.Errorf("leave queue: %w", err)
	}
	e.metrics.QueueLeft(mode, removed)
	return removed, nil
}

// QueueState returns a read-only snapshot of mode's queue.
func (e *Engine) QueueState(ctx context.Context, mode string) ([]models.QueueEntry, error) {
	entries, err := e.store.List(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("queue state: %w", err)
	}
	return entries, nil
}

// Ping checks the queue store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}
