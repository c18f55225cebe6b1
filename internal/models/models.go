package models

import (
	"time"
)

// QueueEntry represents a player waiting in a mode's matchmaking queue
type QueueEntry struct {
	PlayerID   string    `json:"playerId"`
	Rating     float64   `json:"rating"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Region     string    `json:"region,omitempty"`
}

// MatchFound is the payload of the match.found event
type MatchFound struct {
	MatchID string `json:"matchId"`
	Player1 string `json:"p1"`
	Player2 string `json:"p2"`
	Mode    string `json:"mode"`
	Region  string `json:"region,omitempty"`
}

// RatingRecord is a player's Glicko-2 state in one pool
type RatingRecord struct {
	PlayerID   string    `db:"player_id" json:"-"`
	Pool       string    `db:"pool" json:"pool"`
	Rating     float64   `db:"rating" json:"rating"`
	RD         float64   `db:"rd" json:"rd"`
	Volatility float64   `db:"volatility" json:"vol"`
	UpdatedAt  time.Time `db:"updated_at" json:"-"`
}

// HistoryRecord is an immutable game outcome from PlayerID's perspective
type HistoryRecord struct {
	ID         int64     `db:"id" json:"id"`
	PlayerID   string    `db:"player_id" json:"playerId"`
	OpponentID string    `db:"opponent_id" json:"opponentId"`
	Score      float64   `db:"score" json:"score"`
	Pool       string    `db:"pool" json:"pool"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
