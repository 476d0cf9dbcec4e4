// Package metrics は印刷サーバーの Prometheus 指標を提供します。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は印刷キューとエージェントの指標をまとめます。
type Collector struct {
	uploads       prometheus.Counter
	jobsClaimed   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    *prometheus.CounterVec
	conversions   *prometheus.CounterVec
	printFiles    *prometheus.CounterVec
	agentPings    prometheus.Counter

	jobsPending prometheus.Gauge
	agentOnline prometheus.Gauge
}

// NewCollector は指標を作成し reg に登録します。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webprint_uploads_total",
			Help: "Total number of print jobs accepted",
		}),
		jobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webprint_jobs_claimed_total",
			Help: "Total number of jobs claimed by the print agent",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webprint_jobs_completed_total",
			Help: "Total number of jobs acknowledged as done",
		}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webprint_jobs_failed_total",
			Help: "Total number of jobs that ended in error",
		}, []string{"reason"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webprint_conversions_total",
			Help: "Upload normalization attempts by file kind and result",
		}, []string{"kind", "result"}),
		printFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webprint_print_files_served_total",
			Help: "Print file downloads by outcome",
		}, []string{"outcome"}),
		agentPings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webprint_agent_pings_total",
			Help: "Total number of agent heartbeats received",
		}),
		jobsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webprint_jobs_pending",
			Help: "Current number of pending jobs",
		}),
		agentOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webprint_agent_online",
			Help: "1 if the print agent sent a heartbeat recently",
		}),
	}

	reg.MustRegister(
		c.uploads,
		c.jobsClaimed,
		c.jobsCompleted,
		c.jobsFailed,
		c.conversions,
		c.printFiles,
		c.agentPings,
		c.jobsPending,
		c.agentOnline,
	)
	return c
}

// Handler は gatherer の内容を公開する HTTP ハンドラーです。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) JobEnqueued()  { c.uploads.Inc() }
func (c *Collector) JobClaimed()   { c.jobsClaimed.Inc() }
func (c *Collector) JobCompleted() { c.jobsCompleted.Inc() }
func (c *Collector) JobFailed()    { c.jobsFailed.WithLabelValues("agent").Inc() }
func (c *Collector) JobExpired()   { c.jobsFailed.WithLabelValues("expired").Inc() }

// RecordConversion は正規化の結果を記録します。result は converted / failed / skipped です。
func (c *Collector) RecordConversion(kind, result string) {
	c.conversions.WithLabelValues(kind, result).Inc()
}

// RecordPrintFile は印刷ファイル配信の結果を記録します。outcome は subset / original / gone です。
func (c *Collector) RecordPrintFile(outcome string) {
	c.printFiles.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordAgentPing() {
	c.agentPings.Inc()
}

// SetQueueState はキュー長とエージェントの状態を更新します。
func (c *Collector) SetQueueState(pending int, agentOnline bool) {
	c.jobsPending.Set(float64(pending))
	if agentOnline {
		c.agentOnline.Set(1)
		return
	}
	c.agentOnline.Set(0)
}
