package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playchess/backend/internal/rating"
	"github.com/rs/zerolog"
)

// GetRatings handles GET /ratings/:userId
func GetRatings(engine *rating.Engine, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		recs, err := engine.GetRatings(c.Request.Context(), userID)
		if errors.Is(err, rating.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no ratings for user"})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("user", userID).Msg("get ratings failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ratings"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"userId": userID, "ratings": recs})
	}
}

// Recalculate handles POST /ratings/recalc. An empty body recalculates every pool.
func Recalculate(engine *rating.Engine, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Pool string `json:"pool"`
		}
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if err := engine.Recalculate(c.Request.Context(), req.Pool); err != nil {
			log.Error().Err(err).Str("pool", req.Pool).Msg("recalculation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "recalculation failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "recalculated"})
	}
}

// RecordResult handles POST /ratings/results, called when a rated game ends.
// Score is from playerId's perspective: 1 win, 0.5 draw, 0 loss.
func RecordResult(engine *rating.Engine, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PlayerID   string   `json:"playerId" binding:"required"`
			OpponentID string   `json:"opponentId" binding:"required"`
			Score      *float64 `json:"score" binding:"required"`
			Pool       string   `json:"pool" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "playerId, opponentId, score and pool are required"})
			return
		}
		if !rating.ValidScore(*req.Score) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "score must be 0, 0.5 or 1"})
			return
		}
		if req.PlayerID == req.OpponentID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a player cannot play itself"})
			return
		}

		res, err := engine.RecordResult(c.Request.Context(), req.PlayerID, req.OpponentID, *req.Score, req.Pool)
		if errors.Is(err, rating.ErrInvalidResult) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("player", req.PlayerID).Str("opponent", req.OpponentID).Msg("record result failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record result"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"player":   gin.H{"userId": req.PlayerID, "rating": res.Player},
			"opponent": gin.H{"userId": req.OpponentID, "rating": res.Opponent},
		})
	}
}
