package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/khanhnq1406/lo-to-sub001/internal/game"
)

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
}

// handleListRooms is the public room listing: code, seat count, phase and
// mode, enough for a lobby screen to filter on.
func handleListRooms(orch *game.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": orch.Rooms()})
	}
}
