package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLongSetup() TradeSetup {
	return TradeSetup{
		Symbol:      "BTC/USDT",
		Venue:       "phemex",
		Timeframe:   "15m",
		Direction:   Long,
		Score:       72.5,
		Confidence:  0.8,
		EntryPlan:   []float64{100.0},
		StopLoss:    98.0,
		TakeProfits: []float64{102.0, 104.0},
		RR:          2.0,
	}
}

func TestNewTradeSetup_AcceptsCoherentLong(t *testing.T) {
	setup, err := NewTradeSetup(validLongSetup())
	require.NoError(t, err)
	assert.Equal(t, Long, setup.Direction)
}

func TestNewTradeSetup_RejectsLongWithStopAboveEntry(t *testing.T) {
	s := validLongSetup()
	s.StopLoss = 101.0

	_, err := NewTradeSetup(s)
	require.Error(t, err)
	assert.Equal(t, KindInvalidSetup, KindOf(err))
}

func TestNewTradeSetup_RejectsShortWithTPAboveEntry(t *testing.T) {
	s := validLongSetup()
	s.Direction = Short
	s.StopLoss = 102.0
	s.TakeProfits = []float64{98.0, 101.0}

	_, err := NewTradeSetup(s)
	require.Error(t, err)
	assert.Equal(t, KindInvalidSetup, KindOf(err))
}

func TestNewTradeSetup_RejectsNeutralAndRanges(t *testing.T) {
	neutral := validLongSetup()
	neutral.Direction = Neutral
	_, err := NewTradeSetup(neutral)
	assert.Error(t, err)

	overScore := validLongSetup()
	overScore.Score = 101
	_, err = NewTradeSetup(overScore)
	assert.Error(t, err)

	noEntries := validLongSetup()
	noEntries.EntryPlan = nil
	_, err = NewTradeSetup(noEntries)
	assert.Error(t, err)

	noTPs := validLongSetup()
	noTPs.TakeProfits = nil
	_, err = NewTradeSetup(noTPs)
	assert.Error(t, err)
}

func TestParseCandle_ValidRow(t *testing.T) {
	c, err := ParseCandle([]float64{1700000000000, 1, 2, 0.5, 1.5, 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), c.Timestamp)
	assert.Equal(t, 1.5, c.Close)
}

func TestParseCandle_MalformedRows(t *testing.T) {
	_, err := ParseCandle([]float64{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, KindDataShape, KindOf(err))

	_, err = ParseCandle([]float64{1700000000000, 1, 2, math.NaN(), 1.5, 1000})
	require.Error(t, err)
	assert.Equal(t, KindDataShape, KindOf(err))
}

func TestDirection_Opposite(t *testing.T) {
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, Long, Short.Opposite())
	assert.Equal(t, Neutral, Neutral.Opposite())
}

func TestIsRetryable_ByKind(t *testing.T) {
	assert.True(t, IsRetryable(E(KindRateLimit, "429")))
	assert.True(t, IsRetryable(E(KindTransient, "timeout")))
	assert.False(t, IsRetryable(E(KindFatal, "bad symbol")))
	assert.False(t, IsRetryable(nil))
}
