// Package ratelimit enforces a token bucket per (agent, category) using
// golang.org/x/time/rate, gated after C9's auth resolution and before a
// tool handler runs (spec.md §4.9).
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CategoryRatesPerMinute gives the base (1x, worker-role) rate for each
// tool category named in spec.md §4.9 ("general 10/min, broadcast 15/min,
// task-ops 30/min"); the role multiplier scales it per caller.
// Categories not listed fall back to "general".
var CategoryRatesPerMinute = map[string]float64{
	"general":   10,
	"broadcast": 15,
	"task-ops":  30,
}

// DefaultBurst is the base (1x) burst allowance before role scaling.
const DefaultBurst = 5

// RoleMultiplier scales the base rate by caller role (spec.md §4.9
// "reader 0.5x, worker 1x, admin 2x").
type RoleMultiplier map[string]float64

// DefaultMultipliers implements the exact role factors named in spec.md §4.9.
var DefaultMultipliers = RoleMultiplier{
	"reader": 0.5,
	"worker": 1,
	"admin":  2,
}

// Gate holds one limiter per (agent, category, role) key, created lazily
// on first use with the category's base rate scaled by the role factor.
type Gate struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	categoryRate map[string]float64
	baseBurst    int
	multipliers  RoleMultiplier
}

// NewGate builds a Gate using spec.md §4.9's default per-category rates,
// role multipliers and burst allowance.
func NewGate() *Gate {
	return NewGateWithRates(CategoryRatesPerMinute, DefaultBurst, DefaultMultipliers)
}

// NewGateWithRates builds a Gate from explicit per-category
// rates-per-minute, a base (1x) burst, and role multipliers. Exposed
// for tests that need tighter bounds than the real per-minute defaults.
func NewGateWithRates(categoryRatesPerMinute map[string]float64, baseBurst int, multipliers RoleMultiplier) *Gate {
	return &Gate{
		limiters:     make(map[string]*rate.Limiter),
		categoryRate: categoryRatesPerMinute,
		baseBurst:    baseBurst,
		multipliers:  multipliers,
	}
}

func (g *Gate) key(agent, category, role string) string {
	return role + "|" + agent + "|" + category
}

func (g *Gate) baseRatePerSecond(category string) float64 {
	rpm, ok := g.categoryRate[category]
	if !ok {
		rpm = g.categoryRate["general"]
	}
	return rpm / 60
}

func (g *Gate) limiterFor(agent, category, role string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := g.key(agent, category, role)
	if l, ok := g.limiters[key]; ok {
		return l
	}
	mult := g.multipliers[role]
	if mult <= 0 {
		mult = 1
	}
	rps := g.baseRatePerSecond(category) * mult
	burst := int(float64(g.baseBurst) * mult)
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	g.limiters[key] = l
	return l
}

// Allow reports whether (agent, category) under role may proceed right
// now, consuming one token if so.
func (g *Gate) Allow(agent, category, role string) bool {
	return g.limiterFor(agent, category, role).Allow()
}

// RetryAfter returns how long the caller should wait before its next
// token is available, for the RateLimited{retry_after_s} error variant
// (spec.md §7). It reserves and immediately cancels the reservation, so
// it reports delay without consuming the caller's budget.
func (g *Gate) RetryAfter(agent, category, role string) time.Duration {
	l := g.limiterFor(agent, category, role)
	r := l.Reserve()
	if !r.OK() {
		return time.Second
	}
	delay := r.Delay()
	r.Cancel()
	return delay
}

// Peek reports whether a call would currently be allowed, without
// consuming a token. Used by status/introspection tools where checking
// must not itself cost budget.
func (g *Gate) Peek(agent, category, role string) bool {
	return g.RetryAfter(agent, category, role) == 0
}
