package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/game/ranking"
)

// Leaderboard is the read side of the XP ranking.
type Leaderboard interface {
	Top(ctx context.Context, limit int) ([]ranking.Entry, error)
}

// LeaderboardHandler serves the public leaderboard.
type LeaderboardHandler struct {
	board  Leaderboard
	logger *zap.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(board Leaderboard, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{board: board, logger: logger}
}

// Top handles GET /api/leaderboard?limit=50.
func (h *LeaderboardHandler) Top(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.board.Top(c.Request.Context(), limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
