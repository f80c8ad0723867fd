package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"slotline/utils"
)

// HealthHandler reports liveness plus the latest dependency snapshot from
// the background monitor.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"dependencies": utils.GetHealthStatus(),
	})
}
