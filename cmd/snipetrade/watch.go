package main

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/snipetrade/snipetrade/internal/config"
	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/filter"
	"github.com/snipetrade/snipetrade/internal/ops"
	"github.com/snipetrade/snipetrade/internal/output"
	"github.com/snipetrade/snipetrade/internal/scan"
)

func newWatchCmd() *cobra.Command {
	var (
		flags    scanFlags
		cronSpec string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run scans on a cron schedule until interrupted",
		Long: `Watch runs the scan pipeline on a cron schedule, writing a fresh
report bundle each cycle. One scheduler instance spans all cycles so
telemetry and the ops endpoints accumulate across runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			scanCfg, venue := flags.apply(&cfg)
			if err := flags.overlay(cmd, cfg, &scanCfg); err != nil {
				return err
			}
			return runWatch(cmd.Context(), cfg, scanCfg, venue, flags.telegram == 1, flags.opsListen, cronSpec)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&cronSpec, "cron", "*/15 * * * *", "Cron schedule (5-field)")

	return cmd
}

// runWatch scans once immediately, then on every cron tick until the
// context is canceled. Cycles that would overlap a still-running scan
// are skipped rather than queued.
func runWatch(ctx context.Context, cfg config.Settings, scanCfg scan.Config, venue string, telegramOn bool, opsListen, cronSpec string) error {
	adapter, err := buildAdapter(cfg, venue)
	if err != nil {
		return err
	}
	pairs := filter.New(cfg.ExcludeStablecoins, cfg.CustomExclude)

	sched, err := scan.NewScheduler(adapter, nil, pairs, scanCfg, logger)
	if err != nil {
		return err
	}
	sched.WithAudit(output.NewAudit(cfg.Audit.Dir, cfg.Audit.Enabled, logger))

	candleCache, err := buildCandleCache(cfg)
	if err != nil {
		return err
	}
	if candleCache != nil {
		defer candleCache.Close()
		sched.WithCandleCache(candleCache)
	}

	if opsListen != "" {
		srv := ops.NewServer(opsListen, ops.Deps{Counters: sched.Metrics(), Stages: sched.Stages()}, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Warn().Err(err).Msg("ops server stopped")
			}
		}()
	}

	formatter := output.NewFormatter(cfg.Output.Dir, logger)
	notifier := output.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)

	cycle := func() {
		report, err := sched.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("scheduled scan failed")
			return
		}
		if report.Meta.Cancelled {
			// Shutdown mid-cycle; don't publish a partial bundle.
			return
		}
		backtest := scan.SummarizeBacktest(report.Results)
		report.Meta.Backtest = &backtest

		paths, err := formatter.Write(report, cfg.Output.Formats)
		if err != nil {
			logger.Error().Err(err).Msg("report not written")
			return
		}
		for _, path := range paths {
			logger.Info().Str("path", path).Msg("report written")
		}

		if telegramOn && notifier.Enabled() {
			if err := notifier.SendTopSetups(ctx, report); err != nil {
				logger.Warn().Err(err).Msg("telegram alerts failed")
			}
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
	id, err := c.AddFunc(cronSpec, cycle)
	if err != nil {
		return domain.WrapErr(domain.KindConfig, "invalid cron spec "+cronSpec, err)
	}

	logger.Info().Str("cron", cronSpec).Msg("watch started")
	c.Start()
	// first scan right away, through the chain so a tick cannot overlap it
	c.Entry(id).WrappedJob.Run()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Info().Msg("watch stopped")
	return nil
}

// cronLogger adapts zerolog to the cron logger interface. Skipped
// overlapping cycles surface here at info level.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
