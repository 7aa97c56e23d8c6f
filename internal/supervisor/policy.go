package supervisor

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	StrategyFixed   = "fixed"
	StrategyBackoff = "backoff"

	IdentityKeep      = "keep"
	IdentityRandomize = "randomize"

	FaultRetry = "retry"
	FaultStop  = "stop"

	maxIdentityLen = 16
	identityDigits = 4
)

// Policy decides how lost connections are recovered.
type Policy struct {
	Strategy       string
	MaxAttempts    int // 0 means unlimited; only used by StrategyBackoff
	MaxDelay       time.Duration
	Jitter         float64 // fraction of the delay, in [0, 1]
	IdentityPolicy string
	FaultPolicy    string
}

// Delay returns the wait before reconnect attempt n (1-based) for a base delay.
// rnd returns a value in [0, 1).
func (p Policy) Delay(base time.Duration, attempt int, rnd func() float64) time.Duration {
	if p.Strategy != StrategyBackoff {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && rnd != nil {
		offset := (rnd()*2 - 1) * p.Jitter * float64(d)
		d += time.Duration(offset)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Exhausted reports whether attempt n exceeds the retry ceiling.
func (p Policy) Exhausted(attempt int) bool {
	return p.Strategy == StrategyBackoff && p.MaxAttempts > 0 && attempt > p.MaxAttempts
}

// RandomIdentity derives "<prefix><4 digits>" from base, at most 16 characters.
func RandomIdentity(base string, intn func(n int) int) string {
	if intn == nil {
		intn = rand.IntN
	}
	prefix := []rune(base)
	if limit := maxIdentityLen - identityDigits; len(prefix) > limit {
		prefix = prefix[:limit]
	}
	return fmt.Sprintf("%s%04d", string(prefix), intn(10000))
}
