package scan

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
	"time"

	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/exchange"
)

// SyntheticCandles builds a deterministic OHLCV series for symbol/timeframe.
// The RNG is seeded from sha256("symbol:timeframe"), so the same pair always
// walks the same path: runs can be replayed offline and compared byte for
// byte. Timestamps step back from the wall clock; nothing downstream in the
// scan results depends on them except relative volume windows.
func SyntheticCandles(symbol, timeframe string, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return nil, domain.Ef(domain.KindConfig, "synthetic candle limit must be positive, got %d", limit)
	}
	periodMS, err := exchange.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	seed := binary.BigEndian.Uint64(syntheticSeed(symbol, timeframe))
	rng := rand.New(rand.NewSource(int64(seed)))

	price := float64(100 + seed%5000)
	timestamp := time.Now().UnixMilli() - periodMS*int64(limit)

	candles := make([]domain.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		drift := uniform(rng, -0.6, 0.6)
		volatility := uniform(rng, 0.2, 1.5)

		open := price
		close := math.Max(1.0, price*(1+drift/100))
		high := math.Max(open, close) * (1 + volatility/100)
		low := math.Min(open, close) * (1 - volatility/100)
		volume := uniform(rng, 1_000, 5_000) * close

		candles = append(candles, domain.Candle{
			Timestamp: timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
		})
		timestamp += periodMS
		price = close
	}
	return candles, nil
}

func syntheticSeed(symbol, timeframe string) []byte {
	sum := sha256.Sum256([]byte(symbol + ":" + timeframe))
	return sum[:8]
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
