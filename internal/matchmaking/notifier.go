package matchmaking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/playchess/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventMatchFound names the event fired once per formed match.
const EventMatchFound = "match.found"

// Subscriber reacts to formed matches. Errors are logged, never returned to
// the matching engine.
type Subscriber interface {
	OnMatchFound(ctx context.Context, evt models.MatchFound) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, evt models.MatchFound) error

func (f SubscriberFunc) OnMatchFound(ctx context.Context, evt models.MatchFound) error {
	return f(ctx, evt)
}

// Notifier fans match.found events out to registered subscribers in
// registration order.
type Notifier struct {
	mu   sync.RWMutex
	subs []Subscriber
	log  zerolog.Logger
}

func NewNotifier(log zerolog.Logger) *Notifier {
	return &Notifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *Notifier) Subscribe(s Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, s)
}

// Publish calls every subscriber. A failing or panicking subscriber does not
// stop the others.
func (n *Notifier) Publish(ctx context.Context, evt models.MatchFound) {
	n.mu.RLock()
	subs := append([]Subscriber(nil), n.subs...)
	n.mu.RUnlock()

	for _, s := range subs {
		n.deliver(ctx, s, evt)
	}
}

func (n *Notifier) deliver(ctx context.Context, s Subscriber, evt models.MatchFound) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().Interface("panic", r).Str("match_id", evt.MatchID).Msg("subscriber panicked")
		}
	}()
	if err := s.OnMatchFound(ctx, evt); err != nil {
		n.log.Warn().Err(err).Str("match_id", evt.MatchID).Msg("subscriber failed")
	}
}

// LogSubscriber records every match.
func LogSubscriber(log zerolog.Logger) Subscriber {
	return SubscriberFunc(func(ctx context.Context, evt models.MatchFound) error {
		log.Info().
			Str("event", EventMatchFound).
			Str("match_id", evt.MatchID).
			Str("p1", evt.Player1).
			Str("p2", evt.Player2).
			Str("mode", evt.Mode).
			Str("region", evt.Region).
			Msg("match found")
		return nil
	})
}

// MatchEvent is the envelope published on the Redis channel.
type MatchEvent struct {
	Type string `json:"type"`
	models.MatchFound
}

// RedisPublisher forwards events to a Redis pub/sub channel so other
// instances can deliver them.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel, log: log}
}

func (p *RedisPublisher) OnMatchFound(ctx context.Context, evt models.MatchFound) error {
	b, err := json.Marshal(MatchEvent{Type: EventMatchFound, MatchFound: evt})
	if err != nil {
		return fmt.Errorf("marshal match event: %w", err)
	}
	n, err := p.rdb.Publish(ctx, p.channel, b).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", EventMatchFound, err)
	}
	p.log.Debug().Str("match_id", evt.MatchID).Int64("subscribers", n).Msg("published match event")
	return nil
}
