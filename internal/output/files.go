// Package output persists scan reports to disk, builds alert text and
// sends it through Telegram, and keeps the per-scan audit trail.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/scan"
)

// csvHeader is the column contract for spreadsheet consumers; order is
// part of the interface.
var csvHeader = []string{
	"symbol", "timeframe", "direction", "score",
	"entry_near", "entry_far", "stop", "tp1", "rr",
	"leverage", "qty", "liq", "distance_pct", "spread_bps", "vol_usd_24h",
}

// Formatter writes one scan report per requested format into the out
// directory. Files are named scan_<scan_id>.<ext> so repeated runs never
// collide.
type Formatter struct {
	dir    string
	logger zerolog.Logger
}

// NewFormatter returns a formatter rooted at dir (default "out").
func NewFormatter(dir string, logger zerolog.Logger) *Formatter {
	if dir == "" {
		dir = "out"
	}
	return &Formatter{dir: dir, logger: logger.With().Str("component", "output").Logger()}
}

// Write persists the report in each requested format and returns the
// paths written. Unknown formats are skipped with a warning so a typo in
// --formats never discards the scan.
func (f *Formatter) Write(report *scan.Report, formats []string) ([]string, error) {
	if report == nil {
		return nil, domain.E(domain.KindConfig, "nil report")
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, domain.WrapErr(domain.KindExecutor, "creating output dir "+f.dir, err)
	}

	var written []string
	for _, format := range formats {
		name := filepath.Join(f.dir, "scan_"+report.Meta.ScanID+"."+format)
		var err error
		switch format {
		case "json":
			err = f.writeJSON(name, report)
		case "csv":
			err = f.writeCSV(name, report)
		case "md":
			err = f.writeMarkdown(name, report)
		default:
			f.logger.Warn().Str("format", format).Msg("unknown output format skipped")
			continue
		}
		if err != nil {
			return written, err
		}
		written = append(written, name)
		f.logger.Info().Str("path", name).Msg("report written")
	}
	return written, nil
}

func (f *Formatter) writeJSON(path string, report *scan.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return domain.WrapErr(domain.KindExecutor, "creating "+path, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return domain.WrapErr(domain.KindExecutor, "encoding "+path, err)
	}
	return nil
}

func (f *Formatter) writeCSV(path string, report *scan.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return domain.WrapErr(domain.KindExecutor, "creating "+path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write(csvHeader); err != nil {
		return domain.WrapErr(domain.KindExecutor, "writing csv header", err)
	}
	for _, r := range report.Results {
		tp1 := 0.0
		if len(r.TPs) > 0 {
			tp1 = r.TPs[0]
		}
		record := []string{
			r.Symbol,
			r.Timeframe,
			string(r.Direction),
			fmt.Sprintf("%.2f", r.Score),
			trimFloat(r.Entry.Near.Price),
			trimFloat(r.Entry.Far.Price),
			trimFloat(r.Stop),
			trimFloat(tp1),
			fmt.Sprintf("%.2f", r.RR),
			trimFloat(r.Leverage),
			trimFloat(r.Qty),
			trimFloat(r.LiqPrice),
			fmt.Sprintf("%.2f", r.DistancePct),
			fmt.Sprintf("%.1f", r.SpreadBps),
			fmt.Sprintf("%.0f", r.VolUSD24h),
		}
		if err := w.Write(record); err != nil {
			return domain.WrapErr(domain.KindExecutor, "writing csv row "+r.Symbol, err)
		}
	}
	w.Flush()
	return w.Error()
}

func (f *Formatter) writeMarkdown(path string, report *scan.Report) error {
	var b strings.Builder

	meta := report.Meta
	fmt.Fprintf(&b, "# Scan %s\n\n", meta.ScanID)
	fmt.Fprintf(&b, "Generated %s | elapsed %.3fs | pairs %d | qualified %d | returned %d\n\n",
		meta.GeneratedAt, meta.ElapsedSeconds, meta.Stats.Pairs, meta.Stats.Qualified, meta.Stats.Returned)
	fmt.Fprintf(&b, "Filters: min score %.1f, limit %d, leverage %.0fx, risk %.0f USD\n\n",
		meta.Filters.MinScore, meta.Filters.Limit, meta.Filters.Leverage, meta.Filters.RiskUSD)
	for _, note := range meta.Notes {
		fmt.Fprintf(&b, "> %s\n\n", note)
	}

	b.WriteString("| # | Symbol | TF | Dir | Score | Entry N/F | Stop | TP1 | RR | Lev | Liq |\n")
	b.WriteString("|---|--------|----|-----|-------|-----------|------|-----|----|-----|-----|\n")
	for i, r := range report.Results {
		tp1 := 0.0
		if len(r.TPs) > 0 {
			tp1 = r.TPs[0]
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %.1f | %s / %s | %s | %s | %.2f | %sx | %s |\n",
			i+1, r.Symbol, r.Timeframe, r.Direction, r.Score,
			trimFloat(r.Entry.Near.Price), trimFloat(r.Entry.Far.Price),
			trimFloat(r.Stop), trimFloat(tp1), r.RR, trimFloat(r.Leverage), trimFloat(r.LiqPrice))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return domain.WrapErr(domain.KindExecutor, "writing "+path, err)
	}
	return nil
}

// trimFloat renders prices without a fixed precision so 0.00001234 and
// 45000.5 both stay exact.
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
