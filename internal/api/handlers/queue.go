package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playchess/backend/internal/matchmaking"
	"github.com/playchess/backend/internal/middleware"
	"github.com/rs/zerolog"
)

type queueEntryResponse struct {
	PlayerID string  `json:"playerId"`
	Rating   float64 `json:"rating"`
	TS       int64   `json:"ts"`
	Region   string  `json:"region,omitempty"`
}

// JoinQueue handles POST /queue/join
func JoinQueue(engine *matchmaking.Engine, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PlayerID string   `json:"playerId" binding:"required"`
			Mode     string   `json:"mode" binding:"required"`
			Rating   *float64 `json:"rating" binding:"required"`
			Region   string   `json:"region,omitempty"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "playerId, mode and numeric rating are required"})
			return
		}
		if !middleware.AuthorizePlayer(c, req.PlayerID) {
			return
		}

		res, err := engine.JoinQueue(c.Request.Context(), matchmaking.JoinRequest{
			PlayerID: req.PlayerID,
			Mode:     req.Mode,
			Rating:   *req.Rating,
			Region:   req.Region,
		})
		if err != nil {
			log.Error().Err(err).Str("player", req.PlayerID).Str("mode", req.Mode).Msg("join queue failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join queue"})
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// LeaveQueue handles POST /queue/leave
func LeaveQueue(engine *matchmaking.Engine, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PlayerID string `json:"playerId" binding:"required"`
			Mode     string `json:"mode" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "playerId and mode are required"})
			return
		}
		if !middleware.AuthorizePlayer(c, req.PlayerID) {
			return
		}

		removed, err := engine.LeaveQueue(c.Request.Context(), req.Mode, req.PlayerID)
		if err != nil {
			log.Error().Err(err).Str("player", req.PlayerID).Str("mode", req.Mode).Msg("leave queue failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave queue"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

// GetQueueState handles GET /queue/state?mode=X
func GetQueueState(engine *matchmaking.Engine, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode := c.Query("mode")
		if mode == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode is required"})
			return
		}

		entries, err := engine.QueueState(c.Request.Context(), mode)
		if err != nil {
			log.Error().Err(err).Str("mode", mode).Msg("queue state failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue"})
			return
		}

		out := make([]queueEntryResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, queueEntryResponse{
				PlayerID: e.PlayerID,
				Rating:   e.Rating,
				TS:       e.EnqueuedAt.UnixMilli(),
				Region:   e.Region,
			})
		}
		c.JSON(http.StatusOK, out)
	}
}
