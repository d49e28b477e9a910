package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
	"sort"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// ZoneProvider surfaces clusters of resting liquidations around price.
type ZoneProvider interface {
	Zones(ctx context.Context, symbol string, currentPrice float64) ([]domain.LiquidationZone, error)
}

// HeatmapProvider synthesizes a liquidation heatmap when no venue feed is
// wired. Zones are derived from the symbol alone so repeat scans of the
// same market see the same map.
type HeatmapProvider struct {
	maxAmount float64
	minAmount float64
}

// NewHeatmapProvider builds the synthetic provider with the stock
// 100k..5M USD cluster sizing.
func NewHeatmapProvider() *HeatmapProvider {
	return &HeatmapProvider{minAmount: 100_000, maxAmount: 5_000_000}
}

// Zones returns 3..7 liquidation clusters within ±5% of the current
// price, sorted by price level ascending.
func (p *HeatmapProvider) Zones(_ context.Context, symbol string, currentPrice float64) ([]domain.LiquidationZone, error) {
	if currentPrice <= 0 {
		return nil, domain.Ef(domain.KindDataShape, "liquidation zones need a positive price, got %f", currentPrice)
	}

	rng := rand.New(rand.NewSource(symbolSeed(symbol)))
	count := 3 + rng.Intn(5)

	zones := make([]domain.LiquidationZone, 0, count)
	for i := 0; i < count; i++ {
		offset := (rng.Float64()*2 - 1) * 0.05
		amount := p.minAmount + rng.Float64()*(p.maxAmount-p.minAmount)
		direction := domain.Long
		if rng.Intn(2) == 1 {
			direction = domain.Short
		}
		zones = append(zones, domain.LiquidationZone{
			Symbol:       symbol,
			PriceLevel:   currentPrice * (1 + offset),
			Amount:       amount,
			Direction:    direction,
			Significance: math.Min(1, amount/p.maxAmount),
		})
	}

	sort.Slice(zones, func(i, j int) bool { return zones[i].PriceLevel < zones[j].PriceLevel })
	return zones, nil
}

// NearestZone picks the significant zone (significance > 0.5) closest to
// price, or nil when none qualifies.
func NearestZone(zones []domain.LiquidationZone, price float64) *domain.LiquidationZone {
	var nearest *domain.LiquidationZone
	best := math.MaxFloat64
	for i := range zones {
		if zones[i].Significance <= 0.5 {
			continue
		}
		if d := math.Abs(zones[i].PriceLevel - price); d < best {
			best = d
			nearest = &zones[i]
		}
	}
	return nearest
}

// HasSupport reports whether any zone backs the trade direction at or
// above the significance threshold.
func HasSupport(zones []domain.LiquidationZone, direction domain.Direction, threshold float64) bool {
	if threshold <= 0 {
		threshold = 0.6
	}
	for _, z := range zones {
		if z.Direction == direction && z.Significance >= threshold {
			return true
		}
	}
	return false
}

// symbolSeed keys the synthetic generator so that a symbol always maps to
// the same heatmap.
func symbolSeed(symbol string) int64 {
	sum := sha256.Sum256([]byte(symbol))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
