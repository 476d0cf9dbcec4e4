// Package main は印刷サーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mfarzz/webprintrdbi/internal/api"
	"github.com/mfarzz/webprintrdbi/internal/capability"
	"github.com/mfarzz/webprintrdbi/internal/config"
	"github.com/mfarzz/webprintrdbi/internal/convert"
	"github.com/mfarzz/webprintrdbi/internal/liveness"
	"github.com/mfarzz/webprintrdbi/internal/logging"
	"github.com/mfarzz/webprintrdbi/internal/metrics"
	"github.com/mfarzz/webprintrdbi/internal/storage"
)

const previewURLPrefix = "/previews"

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	format := "console"
	if cfg.GinMode == gin.ReleaseMode {
		format = "json"
	}
	logger := logging.New(cfg.LogLevel, format)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	uploads, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return err
	}
	previews, err := storage.NewLocal(cfg.PreviewDir)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	jobsRT, err := setupJobs(ctx, cfg, uploads, collector, logger)
	if err != nil {
		return err
	}
	defer jobsRT.shutdown()

	normalizer := convert.NewNormalizer(convert.Options{
		Office:        capability.LibreOffice(cfg.LibreOfficePath),
		ImageMagick:   capability.ImageMagick(cfg.ImageMagickPath),
		OfficeTimeout: cfg.OfficeTimeout(),
		ImageTimeout:  cfg.ImageTimeout(),
		Logger:        logger.Named("convert"),
	})

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(logging.Recovery(logger), logging.GinMiddleware(logger))
	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))
	router.MaxMultipartMemory = 32 << 20

	deps := api.Deps{
		Jobs:             jobsRT.manager,
		Uploads:          uploads,
		Previews:         previews,
		Normalizer:       normalizer,
		Liveness:         liveness.NewTracker(cfg.AgentOfflineAfter()),
		Metrics:          collector,
		Logger:           logger.Named("api"),
		MaxFileSize:      cfg.MaxFileSize,
		PreviewTTL:       cfg.PreviewTTL(),
		PreviewURLPrefix: previewURLPrefix,
	}
	setupRoutes(router, deps, registry)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting print server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down print server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// setupRoutes は /api 配下と、ルート直下のヘルスチェック・メトリクス・プレビュー配信を登録します。
func setupRoutes(router *gin.Engine, deps api.Deps, gatherer prometheus.Gatherer) {
	router.GET("/health", api.HealthHandler(deps))
	router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	router.Static(previewURLPrefix, deps.Previews.Dir())

	api.RegisterRoutes(router.Group("/api"), deps)
}

func corsConfig(allowed string) cors.Config {
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	var origins []string
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	return corsConfig
}
