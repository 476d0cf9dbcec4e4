// Package main は印刷エージェントのエントリーポイントです。
//
//	print-agent run [-c agent.yaml] [--server URL] [--poll-interval 5s]
//	print-agent version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mfarzz/webprintrdbi/internal/agent"
	"github.com/mfarzz/webprintrdbi/internal/capability"
	"github.com/mfarzz/webprintrdbi/internal/logging"
)

var version = "dev"

func main() {
	if err := buildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildCLI() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "print-agent",
		Short:        "Polls the web print server and prints queued jobs locally",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "agent.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand(&configFile))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return rootCmd
}

func buildRunCommand(configFile *string) *cobra.Command {
	var (
		server       string
		pollInterval time.Duration
		workDir      string
		reportErrors bool
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start polling the print queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := agent.Load(*configFile)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.Server = server
			}
			if flags.Changed("poll-interval") {
				cfg.PollInterval = pollInterval
			}
			if flags.Changed("work-dir") {
				cfg.WorkDir = workDir
			}
			if flags.Changed("report-errors") {
				cfg.ReportErrors = reportErrors
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := logging.New(cfg.Log.Level, cfg.Log.Format)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "print server base URL")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "queue poll interval")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "directory for downloaded files")
	cmd.Flags().BoolVar(&reportErrors, "report-errors", false, "report print failures via the error endpoint instead of done")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func runAgent(ctx context.Context, cfg *agent.Config, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	executor := &agent.Executor{
		Commands:         agent.CommandSet{Sumatra: cfg.Tools.Sumatra},
		Ghostscript:      capability.Ghostscript(cfg.Tools.Ghostscript),
		ImageMagick:      capability.ImageMagick(cfg.Tools.ImageMagick),
		Runner:           capability.ExecRunner{},
		GrayscaleTimeout: cfg.GrayscaleTimeout,
		Logger:           logger.Named("executor"),
	}
	poller := agent.NewPoller(agent.PollerOptions{
		Dispatcher:   agent.NewClient(cfg.Server, cfg.QueueTimeout, cfg.DownloadTimeout),
		Printer:      executor,
		Claims:       agent.NewClaimCache(cfg.ClaimTTL),
		WorkDir:      cfg.WorkDir,
		ReportErrors: cfg.ReportErrors,
		Logger:       logger.Named("poller"),
	})

	logger.Info("print agent started",
		zap.String("server", cfg.Server),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("work_dir", cfg.WorkDir))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx, cfg.PollInterval) })
	g.Go(func() error { return poller.Heartbeat(gctx, cfg.HeartbeatInterval) })
	err := g.Wait()
	logger.Info("print agent stopped")
	return err
}
