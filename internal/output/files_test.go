package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/scan"
)

func sampleReport() *scan.Report {
	return &scan.Report{
		Meta: scan.Meta{
			ScanID:         "scan-123",
			GeneratedAt:    "2026-03-04T12:00:00Z",
			ElapsedSeconds: 1.234,
			Filters:        scan.Filters{MinScore: 60, Limit: 10, Leverage: 5, RiskUSD: 50},
			Stats:          scan.Stats{Pairs: 2, Qualified: 1, Returned: 1},
		},
		Results: []scan.Result{
			{
				Symbol:    "BTC/USDT",
				Timeframe: "15m",
				Direction: domain.Long,
				Score:     82.5,
				Reasons:   []string{"structure", "flow"},
				Entry: scan.EntryBlock{
					Near: scan.EntryLeg{Price: 45000, Type: "limit", PostOnly: true},
					Far:  scan.EntryLeg{Price: 44800, Type: "limit"},
				},
				Stop:        44500,
				TPs:         []float64{45900, 46400, 46900},
				RR:          1.8,
				Leverage:    5,
				Qty:         0.1,
				LiqPrice:    36100,
				DistancePct: 0.42,
				SpreadBps:   2.5,
				VolUSD24h:   1500000,
			},
		},
	}
}

func TestFormatter_Write_JSONBundle(t *testing.T) {
	dir := t.TempDir()
	f := NewFormatter(dir, zerolog.Nop())

	paths, err := f.Write(sampleReport(), []string{"json"})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "scan_scan-123.json")}, paths)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"meta\"")

	var got scan.Report
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "scan-123", got.Meta.ScanID)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "BTC/USDT", got.Results[0].Symbol)
}

func TestFormatter_Write_CSVHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	f := NewFormatter(dir, zerolog.Nop())

	paths, err := f.Write(sampleReport(), []string{"csv"})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
	cells := strings.Split(lines[1], ",")
	require.Len(t, cells, len(csvHeader))
	assert.Equal(t, "BTC/USDT", cells[0])
	assert.Equal(t, "15m", cells[1])
	assert.Equal(t, "LONG", cells[2])
	assert.Equal(t, "82.50", cells[3])
	assert.Equal(t, "45000", cells[4])
	assert.Equal(t, "45900", cells[7])
}

func TestFormatter_Write_MarkdownTable(t *testing.T) {
	dir := t.TempDir()
	f := NewFormatter(dir, zerolog.Nop())

	paths, err := f.Write(sampleReport(), []string{"md"})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "# Scan scan-123")
	assert.Contains(t, text, "pairs 2 | qualified 1 | returned 1")
	assert.Contains(t, text, "| 1 | BTC/USDT | 15m | LONG |")
}

func TestFormatter_Write_UnknownFormatSkipped(t *testing.T) {
	dir := t.TempDir()
	f := NewFormatter(dir, zerolog.Nop())

	paths, err := f.Write(sampleReport(), []string{"yaml", "json"})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], ".json"))
}

func TestFormatter_Write_NilReport(t *testing.T) {
	f := NewFormatter(t.TempDir(), zerolog.Nop())
	_, err := f.Write(nil, []string{"json"})
	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}
