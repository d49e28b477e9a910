package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// VWAPResult is an anchored VWAP with its volume-weighted dispersion.
type VWAPResult struct {
	VWAP   float64 `json:"vwap"`
	StdDev float64 `json:"std_dev"`
}

// AnchoredVWAP computes the volume-weighted average of typical prices
// from the first candle onward. With no volume traded it degrades to the
// last typical price and zero dispersion.
func AnchoredVWAP(candles []domain.Candle) VWAPResult {
	if len(candles) == 0 {
		return VWAPResult{}
	}

	typicals := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	totalVolume := 0.0
	for i, c := range candles {
		typicals[i] = (c.High + c.Low + c.Close) / 3
		if c.Volume > 0 {
			volumes[i] = c.Volume
			totalVolume += c.Volume
		}
	}

	if totalVolume == 0 {
		return VWAPResult{VWAP: typicals[len(typicals)-1]}
	}

	mean, variance := stat.MeanVariance(typicals, volumes)
	if math.IsNaN(variance) || variance < 0 {
		variance = 0
	}
	return VWAPResult{VWAP: mean, StdDev: math.Sqrt(variance)}
}
