package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/snipetrade/snipetrade/internal/config"
	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/exec"
	"github.com/snipetrade/snipetrade/internal/exec/journal"
	"github.com/snipetrade/snipetrade/internal/exec/state"
	"github.com/snipetrade/snipetrade/internal/exchange/phemex"
	"github.com/snipetrade/snipetrade/internal/planner"
)

var tradeModes = map[string]bool{
	"dry":     true,
	"paper":   true,
	"live25":  true,
	"live50":  true,
	"live100": true,
}

func newTradeCmd() *cobra.Command {
	var (
		planPath string
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Dry-run or execute a single plan through the autotrader",
		Long: `Trade loads a plan JSON (as written by scan) and hands it to the
autotrader. Mode dry validates the plan and places nothing; paper fills
against the simulated venue; the live modes place real orders.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !tradeModes[mode] {
				return domain.Ef(domain.KindConfig, "unsupported mode %s", mode)
			}
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			plan, err := loadPlan(planPath)
			if err != nil {
				return err
			}
			if mode == "dry" {
				return printJSON(struct {
					Status string `json:"status"`
					Reason string `json:"reason"`
				}{Status: "dry", Reason: "dry-run"})
			}
			return runTrade(cmd.Context(), cfg, plan, mode)
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Path to plan JSON")
	cmd.Flags().StringVar(&mode, "mode", "dry", "dry|paper|live25|live50|live100")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

// loadPlan reads a plan file produced by the scanner. A malformed file is
// a configuration error, not an execution failure.
func loadPlan(path string) (*planner.TradePlan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapErr(domain.KindConfig, "read plan file "+path, err)
	}
	var plan planner.TradePlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, domain.WrapErr(domain.KindConfig, "parse plan file "+path, err)
	}
	return &plan, nil
}

// runTrade routes one plan through the policy gate and executor and
// prints the verdict JSON. The mode flag overrides the configured
// envelope: reaching this point means autotrade is on for this run.
// Only a fill exits 0; disabled, blocked and rejected verdicts exit 2.
func runTrade(ctx context.Context, cfg config.Settings, plan *planner.TradePlan, mode string) error {
	execCfg := cfg.ExecConfig()
	execCfg.Enabled = true
	execCfg.Mode = mode

	store := state.NewStore(filepath.Join(cfg.Journal.Dir, "orders_state.json"))
	portfolio, err := portfolioState(store)
	if err != nil {
		return err
	}

	jrnl := journal.New(cfg.Journal.Dir, cfg.Journal.RedactKeys, logger)
	if cfg.Journal.PostgresEnabled {
		sink, err := journal.NewPostgresSink(journal.PostgresConfig{
			Enabled: true,
			DSN:     cfg.Journal.PostgresDSN,
		}, logger)
		if err != nil {
			return err
		}
		jrnl = jrnl.WithPostgres(sink)
	}

	venue, err := buildVenue(cfg, mode)
	if err != nil {
		return err
	}
	executor := exec.NewExecutor(venue, store, jrnl, logger)

	var client *redis.Client
	if cfg.Redis.Enabled {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		executor = executor.WithRegistry(exec.NewIdempotencyRegistry(client, "", 0))
	}

	result, err := executor.Route(ctx, plan, portfolio, execCfg, exec.RealClock())
	if client != nil {
		_ = client.Close()
	}
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if result.Status != "filled" {
		os.Exit(2)
	}
	return nil
}

// buildVenue picks the order venue for the mode: paper trades against the
// simulator, live modes against Phemex.
func buildVenue(cfg config.Settings, mode string) (exec.Venue, error) {
	if mode == "paper" {
		return exec.NewPaperVenue(), nil
	}
	if cfg.ExchangeConfig.APIKey == "" || cfg.ExchangeConfig.Secret == "" {
		return nil, domain.Ef(domain.KindConfig, "mode %s requires exchange credentials", mode)
	}
	return exec.NewPhemexVenue(phemex.NewClient(cfg.PhemexConfig())), nil
}

// portfolioState summarizes open orders into the exposure snapshot the
// policy gate evaluates. Daily realized loss tracking needs closed-trade
// accounting the state file does not carry, so it reports zero.
func portfolioState(store *state.Store) (domain.PortfolioState, error) {
	open, err := store.LoadOpenOrders()
	if err != nil {
		return domain.PortfolioState{}, err
	}

	portfolio := domain.PortfolioState{
		OpenTrades:     len(open),
		SymbolExposure: map[string]float64{},
	}
	for _, order := range open {
		var snapshot struct {
			Symbol      string  `json:"symbol"`
			NotionalUSD float64 `json:"notional_usd"`
		}
		if err := json.Unmarshal(order.Plan, &snapshot); err != nil || snapshot.Symbol == "" {
			continue
		}
		portfolio.SymbolExposure[snapshot.Symbol] += snapshot.NotionalUSD
		portfolio.TotalExposureUSD += snapshot.NotionalUSD
	}
	return portfolio, nil
}

// printJSON writes one indented JSON document to stdout, the trade
// command's whole contract with callers.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
