package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AgentPingHandler は POST /api/agent/ping のハンドラーを返します。
func AgentPingHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		at := d.Liveness.Ping()
		d.Metrics.RecordAgentPing()
		if queueLength, err := pendingCount(c, d.Jobs); err != nil {
			d.Logger.Warn("agent ping: failed to read queue", zap.Error(err))
		} else {
			d.Metrics.SetQueueState(queueLength, true)
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "receivedAt": at.UTC()})
	}
}

// HealthHandler は GET /health のハンドラーを返します。
func HealthHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		queueLength, err := pendingCount(c, d.Jobs)
		if err != nil {
			d.Logger.Error("health: failed to read queue", zap.Error(err))
			respondWithError(c, err)
			return
		}
		online := d.Liveness.Online()
		d.Metrics.SetQueueState(queueLength, online)

		var lastPing *time.Time
		if last, ok := d.Liveness.LastPing(); ok {
			utc := last.UTC()
			lastPing = &utc
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":            true,
			"agentOnline":   online,
			"lastAgentPing": lastPing,
			"queueLength":   queueLength,
		})
	}
}
