// Package api は印刷キューの HTTP ハンドラーを提供します。
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mfarzz/webprintrdbi/internal/convert"
	"github.com/mfarzz/webprintrdbi/internal/jobs"
	"github.com/mfarzz/webprintrdbi/internal/liveness"
	"github.com/mfarzz/webprintrdbi/internal/storage"
)

// DocumentNormalizer はアップロードファイルをPDFに変換します。
type DocumentNormalizer interface {
	Normalize(ctx context.Context, path string, kind convert.Kind) convert.Result
}

// Metrics はハンドラーが記録する指標です。
type Metrics interface {
	RecordConversion(kind, result string)
	RecordPrintFile(outcome string)
	RecordAgentPing()
	SetQueueState(pending int, agentOnline bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordConversion(string, string) {}
func (nopMetrics) RecordPrintFile(string)          {}
func (nopMetrics) RecordAgentPing()                {}
func (nopMetrics) SetQueueState(int, bool)         {}

// Deps はハンドラーの依存関係です。
type Deps struct {
	Jobs        *jobs.Manager
	Uploads     *storage.Local
	Previews    *storage.Local
	Normalizer  DocumentNormalizer
	Liveness    *liveness.Tracker
	Metrics     Metrics
	Logger      *zap.Logger
	MaxFileSize int64
	PreviewTTL  time.Duration
	// PreviewURLPrefix はプレビューファイルを配信するパスです。
	PreviewURLPrefix string
}

func (d *Deps) defaults() {
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.PreviewURLPrefix == "" {
		d.PreviewURLPrefix = "/previews"
	}
	if d.PreviewTTL <= 0 {
		d.PreviewTTL = 10 * time.Minute
	}
}

// RegisterRoutes は /api 配下のルートを登録します。
func RegisterRoutes(r gin.IRouter, d Deps) {
	d.defaults()

	r.POST("/upload", UploadHandler(d))
	r.GET("/queue", QueueHandler(d))
	r.POST("/queue/:id/claim", ClaimHandler(d))
	r.POST("/queue/:id/done", DoneHandler(d))
	r.POST("/queue/:id/error", ErrorReportHandler(d))
	r.GET("/jobs/:id", JobStatusHandler(d))
	r.GET("/print-file/:id", PrintFileHandler(d))
	r.POST("/agent/ping", AgentPingHandler(d))
	r.GET("/health", HealthHandler(d))
	r.POST("/preview", PreviewHandler(d))
	r.POST("/preview/cleanup", PreviewCleanupHandler(d))
}
