package resilience

import (
	"strings"
	"time"
)

// RetryPolicy bounds how often an idempotent call is repeated.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy configures the per-operation circuit breaker. A zero value
// leaves breakers disabled.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy

	// Stages overrides Retry for a pipeline stage. Keys match either the full
	// operation name ("tei.rerank") or the part after the provider prefix
	// ("rerank").
	Stages map[string]RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 150 * time.Millisecond,
			MaxBackoff:     800 * time.Millisecond,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      5,
			FailureRatio:     0.6,
			OpenTimeout:      20 * time.Second,
			HalfOpenMaxCalls: 2,
		},
		Stages: map[string]RetryPolicy{
			// rerank and nli sit on the answer path and have local fallbacks,
			// so one quick retry is enough.
			"rerank":     {MaxAttempts: 2, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 100 * time.Millisecond},
			"nli":        {MaxAttempts: 2, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 100 * time.Millisecond},
			"entailment": {MaxAttempts: 2, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 100 * time.Millisecond},
			"publish":    {MaxAttempts: 4, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second},
		},
	}
}

// retryFor resolves the retry policy for an operation. Missing fields in a
// stage override are taken from the base policy.
func (c Config) retryFor(operation string) RetryPolicy {
	stage, ok := c.Stages[operation]
	if !ok {
		if _, suffix, found := strings.Cut(operation, "."); found {
			stage, ok = c.Stages[suffix]
		}
	}
	if !ok {
		return c.Retry
	}
	return stage.withFallback(c.Retry)
}

func (p RetryPolicy) withFallback(base RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = base.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = base.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = base.MaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = base.Multiplier
	}
	return p
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c
	out.Retry = c.Retry.withFallback(def.Retry)

	if !out.Breaker.Enabled {
		return out
	}
	if out.Breaker.MinRequests == 0 {
		out.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if out.Breaker.FailureRatio <= 0 || out.Breaker.FailureRatio > 1 {
		out.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if out.Breaker.OpenTimeout <= 0 {
		out.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}
	if out.Breaker.HalfOpenMaxCalls == 0 {
		out.Breaker.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}
	return out
}
