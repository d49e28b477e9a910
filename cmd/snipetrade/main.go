package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/snipetrade/snipetrade/internal/config"
	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/exchange"
	"github.com/snipetrade/snipetrade/internal/exchange/offline"
	"github.com/snipetrade/snipetrade/internal/exchange/phemex"
)

const (
	appName = "snipetrade"
	version = "v1.2.0"
)

var (
	flagConfig   string
	flagLogLevel string
	logger       zerolog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Perp futures scanner and maker-first trade executor",
		Version: version,
		Long: `snipetrade scans perp futures markets across timeframes, ranks
confluence setups into reproducible reports and, when autotrade is
enabled, routes the resulting plans through a policy-gated maker-first
executor.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to JSON config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger = newLogger(flagLogLevel)
	}

	rootCmd.AddCommand(newScanCmd(), newTradeCmd(), newWatchCmd(), newServeCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("command failed")
		if domain.KindOf(err) == domain.KindConfig {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

// newLogger builds the process logger: human console output on a TTY,
// raw JSON lines otherwise.
func newLogger(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// loadSettings resolves configuration and re-levels the logger once the
// file and environment have been consulted. Validation issues are fatal
// configuration errors.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if cmd.Root().PersistentFlags().Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	logger = newLogger(cfg.LogLevel)

	if issues := cfg.Validate(); len(issues) > 0 {
		return cfg, domain.Ef(domain.KindConfig, "invalid configuration: %s", strings.Join(issues, "; "))
	}
	return cfg, nil
}

// buildAdapter selects the market data venue. venue overrides the
// configured exchange when non-empty (from a topN:venue symbols spec).
func buildAdapter(cfg config.Settings, venue string) (exchange.Adapter, error) {
	if venue == "" {
		venue = cfg.Exchange
	}
	switch strings.ToLower(venue) {
	case "phemex":
		return phemex.NewClient(cfg.PhemexConfig()), nil
	case "offline":
		return offline.New("phemex", ""), nil
	default:
		return nil, domain.Ef(domain.KindConfig, "unsupported exchange %s", venue)
	}
}

// splitList parses a comma-separated flag value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
