package agent

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mfarzz/webprintrdbi/internal/jobs"
)

// Dispatcher はサーバーとのジョブ受け渡しです。*Client が実装します。
type Dispatcher interface {
	FetchQueue(ctx context.Context) ([]*jobs.Job, error)
	Download(ctx context.Context, job *jobs.Job, dir string) (string, error)
	Claim(ctx context.Context, id string) error
	Done(ctx context.Context, id string) error
	ReportError(ctx context.Context, id, reason string) error
	Ping(ctx context.Context) error
}

// Printer はダウンロード済みファイルを印刷します。*Executor が実装します。
type Printer interface {
	Execute(ctx context.Context, req PrintRequest) Outcome
}

type PollerOptions struct {
	Dispatcher   Dispatcher
	Printer      Printer
	Claims       *ClaimCache
	WorkDir      string
	ReportErrors bool
	Logger       *zap.Logger
}

// Poller はキューを定期的に確認し、ジョブを 1 件ずつ順番に印刷します。
type Poller struct {
	dispatcher   Dispatcher
	printer      Printer
	claims       *ClaimCache
	workDir      string
	reportErrors bool
	logger       *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewPoller(opts PollerOptions) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	claims := opts.Claims
	if claims == nil {
		claims = NewClaimCache(time.Minute)
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Poller{
		dispatcher:   opts.Dispatcher,
		printer:      opts.Printer,
		claims:       claims,
		workDir:      workDir,
		reportErrors: opts.ReportErrors,
		logger:       logger,
	}
}

// Run は interval ごとに Tick を起動します。前回のサイクルが終わっていなければその回は何もしません。
// ctx が終了すると実行中のサイクルを待ってから戻ります。
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return nil
		case <-ticker.C:
			p.spawn(ctx)
		}
	}
}

func (p *Poller) spawn(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Tick(ctx)
	}()
}

// Tick は 1 サイクル分の処理を行います。別のサイクルが実行中なら false を返します。
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Debug("previous cycle still running, skipping tick")
		return false
	}
	defer p.running.Store(false)

	queue, err := p.dispatcher.FetchQueue(ctx)
	if err != nil {
		p.logger.Warn("failed to fetch queue", zap.Error(err))
		return true
	}

	p.drain(ctx, queue)
	p.logger.Debug("poll cycle finished",
		zap.Int("queued", len(queue)),
		zap.Int("tracked_claims", p.claims.Len()))
	return true
}

// drain はキューを先頭から処理します。一時的な失敗があればそこで打ち切ります。
func (p *Poller) drain(ctx context.Context, queue []*jobs.Job) {
	for _, job := range queue {
		if ctx.Err() != nil {
			return
		}
		if job.Status != "" && job.Status != jobs.StatusPending {
			continue
		}
		if !p.claims.TryClaim(job.ID) {
			continue
		}
		if !p.process(ctx, job) {
			return
		}
	}
}

// process は 1 ジョブを処理します。サイクルを中断すべき場合は false を返します。
func (p *Poller) process(ctx context.Context, job *jobs.Job) bool {
	logger := p.logger.With(zap.String("job_id", job.ID), zap.String("file", job.OriginalName))

	path, err := p.dispatcher.Download(ctx, job, p.workDir)
	switch {
	case errors.Is(err, ErrFileGone), errors.Is(err, ErrJobNotFound):
		logger.Warn("print file unavailable, discarding job", zap.Error(err))
		p.claims.Finish(job.ID)
		return true
	case err != nil:
		logger.Warn("failed to download print file", zap.Error(err))
		p.claims.Release(job.ID)
		return false
	}

	if err := p.dispatcher.Claim(ctx, job.ID); err != nil {
		removeQuietly(path)
		if errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrJobNotFound) {
			logger.Warn("job no longer pending, skipping", zap.Error(err))
			p.claims.Finish(job.ID)
			return true
		}
		logger.Warn("failed to claim job", zap.Error(err))
		p.claims.Release(job.ID)
		return false
	}

	logger.Info("printing job",
		zap.Int("copies", job.Settings.Copies),
		zap.String("color", string(job.Settings.Color)))
	outcome := p.printer.Execute(ctx, PrintRequest{
		JobID:    job.ID,
		Path:     path,
		Settings: job.Settings,
	})

	p.report(ctx, logger, job.ID, outcome)
	p.claims.Finish(job.ID)
	return true
}

func (p *Poller) report(ctx context.Context, logger *zap.Logger, id string, outcome Outcome) {
	var err error
	if outcome.Err != nil && p.reportErrors {
		err = p.dispatcher.ReportError(ctx, id, outcome.Err.Error())
	} else {
		err = p.dispatcher.Done(ctx, id)
	}
	switch {
	case errors.Is(err, ErrJobNotFound):
		logger.Warn("job already finished on server", zap.Error(err))
	case err != nil:
		logger.Warn("failed to report job outcome", zap.Error(err))
	}
}

// Heartbeat は interval ごとにサーバーへ ping を送ります。印刷処理とは独立して動きます。
func (p *Poller) Heartbeat(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.dispatcher.Ping(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("heartbeat failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func removeQuietly(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
