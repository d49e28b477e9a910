package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideExecution_MakerLimits(t *testing.T) {
	near := EntryLeg{Price: 98.5, Type: EntryLimit, PostOnly: true, Reason: "OB anchored with orderflow"}
	far := EntryLeg{Price: 96.5, Type: EntryLimit, PostOnly: true, Reason: "FVG extension"}

	plan := DecideExecution(near, far, 1_000_000, Config{EntryTimeoutSec: 60})

	assert.Equal(t, int64(1_060_000), plan.Near.ValidUntilMS)
	assert.Equal(t, int64(1_060_000), plan.Far.ValidUntilMS)

	require.NotNil(t, plan.Fallback)
	assert.Equal(t, int64(60_000), plan.Fallback.ActivateAfterMS)
	assert.Equal(t, EntryStop, plan.Fallback.Type)
	assert.Equal(t, 98.5, plan.Fallback.Price)
	assert.Equal(t, "maker_timeout", plan.Fallback.Reason)
}

func TestDecideExecution_StopEntries(t *testing.T) {
	near := EntryLeg{Price: 98.51, Type: EntryStop, Reason: "liquidity stop"}
	far := EntryLeg{Price: 96.51, Type: EntryStop, Reason: "protective stop"}

	plan := DecideExecution(near, far, 1_000_000, Config{EntryTimeoutSec: 60})

	// Stop entries trigger on touch; they neither expire nor fall back.
	assert.Zero(t, plan.Near.ValidUntilMS)
	assert.Zero(t, plan.Far.ValidUntilMS)
	assert.Nil(t, plan.Fallback)
}

func TestDecideExecution_MixedLegs(t *testing.T) {
	near := EntryLeg{Price: 98.51, Type: EntryStop}
	far := EntryLeg{Price: 96.5, Type: EntryLimit, PostOnly: true}

	plan := DecideExecution(near, far, 500, Config{EntryTimeoutSec: 90})

	assert.Zero(t, plan.Near.ValidUntilMS)
	assert.Nil(t, plan.Fallback)
	assert.Equal(t, int64(90_500), plan.Far.ValidUntilMS)
}

func TestDecideExecution_DefaultTimeout(t *testing.T) {
	near := EntryLeg{Price: 98.5, Type: EntryLimit, PostOnly: true}

	plan := DecideExecution(near, EntryLeg{Type: EntryStop}, 0, Config{})

	assert.Equal(t, int64(60_000), plan.Near.ValidUntilMS)
	require.NotNil(t, plan.Fallback)
	assert.Equal(t, int64(60_000), plan.Fallback.ActivateAfterMS)
}
