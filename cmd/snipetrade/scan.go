package main

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/snipetrade/snipetrade/internal/config"
	"github.com/snipetrade/snipetrade/internal/data/cache"
	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/filter"
	"github.com/snipetrade/snipetrade/internal/gates"
	"github.com/snipetrade/snipetrade/internal/ops"
	"github.com/snipetrade/snipetrade/internal/output"
	"github.com/snipetrade/snipetrade/internal/scan"
)

// scanFlags are the scan knobs, shared by the scan and watch commands.
type scanFlags struct {
	symbols    string
	timeframes string
	limit      int
	minScore   float64
	leverage   float64
	riskUSD    float64
	telegram   int
	formats    string
	outDir     string
	opsListen  string
}

func (f *scanFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.symbols, "symbols", "", "Comma-separated symbols, or topN:venue (e.g. top20:phemex)")
	fs.StringVar(&f.timeframes, "timeframes", "", "Comma-separated timeframes (default from config)")
	fs.IntVar(&f.limit, "limit", 10, "Max setups to return after ranking")
	fs.Float64Var(&f.minScore, "min-score", 60, "Minimum composite score to keep")
	fs.Float64Var(&f.leverage, "leverage", 5, "Leverage for sizing and liquidation checks")
	fs.Float64Var(&f.riskUSD, "risk-usd", 50, "Risk per trade in USD")
	fs.IntVar(&f.telegram, "telegram", 0, "Send Telegram alerts (0|1)")
	fs.StringVar(&f.formats, "formats", "", "Output formats: json,csv,md")
	fs.StringVar(&f.outDir, "out", "", "Output directory (default from config)")
	fs.StringVar(&f.opsListen, "ops-listen", "", "Also serve ops endpoints on this address")
}

// apply resolves the flags over the loaded settings and returns the scan
// config plus any venue override from a topN:venue symbols spec.
func (f *scanFlags) apply(cfg *config.Settings) (scan.Config, string) {
	scanCfg := cfg.ScanConfig()
	scanCfg.Limit = f.limit
	scanCfg.MinScore = f.minScore
	scanCfg.Leverage = f.leverage
	scanCfg.RiskUSD = f.riskUSD
	if f.timeframes != "" {
		scanCfg.Timeframes = splitList(f.timeframes)
	}

	venue := ""
	if f.symbols != "" {
		if n, v, ok := parseTopSpec(f.symbols); ok {
			scanCfg.MaxPairs = n
			venue = v
		} else {
			scanCfg.Symbols = splitList(f.symbols)
		}
	}

	if f.formats != "" {
		cfg.Output.Formats = splitList(f.formats)
	}
	if f.outDir != "" {
		cfg.Output.Dir = f.outDir
	}
	return scanCfg, venue
}

// overlay layers the optional YAML files onto the scan config: the gates
// profile adjusts the score floor, the universe file pins the symbols.
// Explicit flags still win over both.
func (f *scanFlags) overlay(cmd *cobra.Command, cfg config.Settings, scanCfg *scan.Config) error {
	if cfg.GatesProfile != "" {
		profile, err := gates.LoadProfile(cfg.GatesProfile)
		if err != nil {
			return domain.WrapErr(domain.KindConfig, "load gates profile", err)
		}
		if issues := profile.Validate(); len(issues) > 0 {
			return domain.Ef(domain.KindConfig, "invalid gates profile %s: %s", cfg.GatesProfile, strings.Join(issues, "; "))
		}
		if !cmd.Flags().Changed("min-score") {
			scanCfg.MinScore = profile.MinScore
		}
	}

	if f.symbols == "" && cfg.PairsFile != "" {
		universe, err := filter.LoadUniverse(cfg.PairsFile)
		if err != nil {
			return err
		}
		scanCfg.Symbols = universe
	}
	return nil
}

// buildCandleCache selects the scan cache backend. A nil manager keeps the
// scheduler's process-local default; Redis is opted into via config so
// parallel scanners share fetches.
func buildCandleCache(cfg config.Settings) (cache.Manager, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	mgr, err := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, domain.WrapErr(domain.KindTransient, "connect scan cache", err)
	}
	return mgr, nil
}

func newScanCmd() *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one end-to-end market scan",
		Long: `Scan expands the trading universe (or pins the symbols you pass),
scores every pair across the configured timeframes, and writes the
ranked report in the requested formats.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			scanCfg, venue := flags.apply(&cfg)
			if err := flags.overlay(cmd, cfg, &scanCfg); err != nil {
				return err
			}
			return runScan(cmd.Context(), cfg, scanCfg, venue, flags.telegram == 1, flags.opsListen)
		},
	}
	flags.register(cmd.Flags())

	return cmd
}

var topSpecRe = regexp.MustCompile(`^top(\d+):([A-Za-z0-9_-]+)$`)

// parseTopSpec reads the "topN:venue" symbols shorthand.
func parseTopSpec(spec string) (int, string, bool) {
	m := topSpecRe.FindStringSubmatch(spec)
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, "", false
	}
	return n, m[2], true
}

// runScan executes one scan and fans the report out to files and
// optional Telegram alerts. With opsListen set, the ops server shares
// the scheduler's telemetry for the duration of the run.
func runScan(ctx context.Context, cfg config.Settings, scanCfg scan.Config, venue string, telegramOn bool, opsListen string) error {
	adapter, err := buildAdapter(cfg, venue)
	if err != nil {
		return err
	}
	pairs := filter.New(cfg.ExcludeStablecoins, cfg.CustomExclude)

	sched, err := scan.NewScheduler(adapter, nil, pairs, scanCfg, logger)
	if err != nil {
		return err
	}
	audit := output.NewAudit(cfg.Audit.Dir, cfg.Audit.Enabled, logger)
	sched.WithAudit(audit)

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

	report, err := sched.Scan(ctx)
	if err != nil {
		return err
	}
	backtest := scan.SummarizeBacktest(report.Results)
	report.Meta.Backtest = &backtest

	paths, err := output.NewFormatter(cfg.Output.Dir, logger).Write(report, cfg.Output.Formats)
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Println(path)
	}

	if telegramOn {
		notifier := output.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if !notifier.Enabled() {
			logger.Warn().Msg("telegram requested but bot token or chat id missing")
		} else if err := notifier.SendTopSetups(ctx, report); err != nil {
			logger.Warn().Err(err).Msg("telegram alerts failed")
		}
	}
	return nil
}
