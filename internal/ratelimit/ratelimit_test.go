package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ratesPerSecond(rps float64) map[string]float64 {
	return map[string]float64{"general": rps * 60, "broadcast": rps * 60, "task-ops": rps * 60}
}

func TestGate_AllowsUpToBurstThenBlocks(t *testing.T) {
	g := NewGateWithRates(ratesPerSecond(1), 2, DefaultMultipliers) // reader: 0.5/s, burst 1
	assert.True(t, g.Allow("claude", "general", "reader"))
	assert.False(t, g.Allow("claude", "general", "reader"))
}

func TestGate_AdminGetsHigherBudget(t *testing.T) {
	g := NewGateWithRates(ratesPerSecond(1), 2, DefaultMultipliers)
	readerAllowed := 0
	for i := 0; i < 20; i++ {
		if g.Allow("reader1", "general", "reader") {
			readerAllowed++
		}
	}
	adminAllowed := 0
	for i := 0; i < 20; i++ {
		if g.Allow("admin1", "general", "admin") {
			adminAllowed++
		}
	}
	assert.Greater(t, adminAllowed, readerAllowed)
}

func TestGate_SeparateKeysDontShareBudget(t *testing.T) {
	g := NewGateWithRates(ratesPerSecond(1), 1, DefaultMultipliers)
	assert.True(t, g.Allow("a", "general", "reader"))
	assert.True(t, g.Allow("b", "general", "reader"))
}

func TestGate_RetryAfterNonConsuming(t *testing.T) {
	g := NewGateWithRates(ratesPerSecond(1), 1, DefaultMultipliers)
	require := assert.New(t)
	require.True(g.Allow("x", "general", "reader"))
	_ = g.RetryAfter("x", "general", "reader")
	// RetryAfter must not itself consume a token relative to a direct Allow check.
	delay2 := g.RetryAfter("x", "general", "reader")
	require.True(delay2 > 0)
}

func TestGate_UnknownCategoryFallsBackToGeneral(t *testing.T) {
	g := NewGateWithRates(ratesPerSecond(1), 2, DefaultMultipliers)
	assert.True(t, g.Allow("claude", "unlisted-category", "reader"))
}

func TestGate_DefaultGateUsesSpecRates(t *testing.T) {
	g := NewGate()
	assert.Equal(t, float64(10), g.categoryRate["general"])
	assert.Equal(t, float64(15), g.categoryRate["broadcast"])
	assert.Equal(t, float64(30), g.categoryRate["task-ops"])
	assert.Equal(t, 0.5, DefaultMultipliers["reader"])
	assert.Equal(t, float64(2), DefaultMultipliers["admin"])
}
