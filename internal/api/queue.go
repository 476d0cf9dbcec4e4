package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mfarzz/webprintrdbi/internal/jobs"
)

// QueueHandler は GET /api/queue のハンドラーを返します。pending のジョブを受付順に返します。
func QueueHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		pending, err := d.Jobs.Pending(c.Request.Context())
		if err != nil {
			d.Logger.Error("failed to list pending jobs", zap.Error(err))
			respondWithError(c, err)
			return
		}
		d.Metrics.SetQueueState(len(pending), d.Liveness.Online())
		c.JSON(http.StatusOK, pending)
	}
}

// ClaimHandler は POST /api/queue/:id/claim のハンドラーを返します。
func ClaimHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		id, ok := jobIDParam(c)
		if !ok {
			return
		}
		job, err := d.Jobs.Claim(c.Request.Context(), id)
		if err != nil {
			respondWithError(c, err)
			return
		}
		d.Logger.Info("job claimed", zap.String("job_id", id))
		c.JSON(http.StatusOK, gin.H{"job": job})
	}
}

// DoneHandler は POST /api/queue/:id/done のハンドラーを返します。
// 終了済みジョブへの再呼び出しは 404 になります。
func DoneHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		id, ok := jobIDParam(c)
		if !ok {
			return
		}
		job, err := d.Jobs.Complete(c.Request.Context(), id)
		if err != nil {
			respondWithError(c, err)
			return
		}
		d.Logger.Info("job done", zap.String("job_id", id), zap.String("file", job.OriginalName))
		c.JSON(http.StatusOK, gin.H{"message": "ジョブを完了しました。"})
	}
}

type errorReport struct {
	Reason string `json:"reason" form:"reason"`
}

// ErrorReportHandler は POST /api/queue/:id/error のハンドラーを返します。
func ErrorReportHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		id, ok := jobIDParam(c)
		if !ok {
			return
		}
		var report errorReport
		_ = c.ShouldBind(&report)
		reason := strings.TrimSpace(report.Reason)
		if reason == "" {
			reason = "print failed"
		}

		if _, err := d.Jobs.Fail(c.Request.Context(), id, reason); err != nil {
			respondWithError(c, err)
			return
		}
		d.Logger.Warn("job reported failed", zap.String("job_id", id), zap.String("reason", reason))
		c.JSON(http.StatusOK, gin.H{"message": "ジョブをエラーとして記録しました。"})
	}
}

// JobStatusHandler は GET /api/jobs/:id のハンドラーを返します。
func JobStatusHandler(d Deps) gin.HandlerFunc {
	d.defaults()
	return func(c *gin.Context) {
		id, ok := jobIDParam(c)
		if !ok {
			return
		}
		job, err := d.Jobs.Get(c.Request.Context(), id)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func jobIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "jobId を指定してください。",
		})
		return "", false
	}
	return id, true
}

// pendingCount は pending のジョブ数です。
func pendingCount(c *gin.Context, m *jobs.Manager) (int, error) {
	pending, err := m.Pending(c.Request.Context())
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}
