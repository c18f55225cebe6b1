package ws

import (
	"context"
	"encoding/json"

	"github.com/playchess/backend/internal/matchmaking"
	"github.com/redis/go-redis/v9"
)

// RunMatchEventRelay subscribes to the match events channel and hands each
// match.found to the hub, so a player connected to any instance is notified.
// It blocks until ctx is cancelled.
func (h *Hub) RunMatchEventRelay(ctx context.Context, rdb *redis.Client, channel string) error {
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	h.log.Info().Str("channel", channel).Msg("match event relay started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("match event relay stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt matchmaking.MatchEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				h.log.Warn().Err(err).Msg("invalid match event payload")
				continue
			}
			if evt.Type != matchmaking.EventMatchFound {
				h.log.Debug().Str("type", evt.Type).Msg("ignoring event")
				continue
			}
			h.OnMatchFound(ctx, evt.MatchFound)
		}
	}
}
