package crawler

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Random is a seedable RandomSource safe for concurrent use.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandom seeds a PCG generator. A zero seed derives one from the clock.
func NewRandom(seed uint64) *Random {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Random{rnd: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

// IntN returns a value in [0, n).
func (r *Random) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.IntN(n)
}

// Int64N returns a value in [0, n).
func (r *Random) Int64N(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Int64N(n)
}

// UserAgentPool picks a User-Agent per request from a fixed list.
type UserAgentPool struct {
	agents []string
	rnd    RandomSource
}

// NewUserAgentPool copies agents; the pool never changes afterwards.
func NewUserAgentPool(agents []string, rnd RandomSource) (*UserAgentPool, error) {
	if len(agents) == 0 {
		return nil, errors.New("user agent pool is empty")
	}
	if rnd == nil {
		return nil, errors.New("random source is required")
	}
	return &UserAgentPool{agents: append([]string(nil), agents...), rnd: rnd}, nil
}

// Pick returns one agent chosen uniformly.
func (p *UserAgentPool) Pick() string {
	if len(p.agents) == 1 {
		return p.agents[0]
	}
	return p.agents[p.rnd.IntN(len(p.agents))]
}

// Len returns the pool size.
func (p *UserAgentPool) Len() int {
	return len(p.agents)
}

// Jitter draws delays uniformly from [Min, Max].
type Jitter struct {
	min time.Duration
	max time.Duration
	rnd RandomSource
}

// NewJitter validates the range.
func NewJitter(minDelay, maxDelay time.Duration, rnd RandomSource) (*Jitter, error) {
	if minDelay < 0 {
		return nil, fmt.Errorf("jitter min must be >= 0, got %s", minDelay)
	}
	if maxDelay < minDelay {
		return nil, fmt.Errorf("jitter max %s is below min %s", maxDelay, minDelay)
	}
	if rnd == nil {
		return nil, errors.New("random source is required")
	}
	return &Jitter{min: minDelay, max: maxDelay, rnd: rnd}, nil
}

// Next returns the next delay.
func (j *Jitter) Next() time.Duration {
	if j.max == j.min {
		return j.min
	}
	return j.min + time.Duration(j.rnd.Int64N(int64(j.max-j.min)+1))
}

// Min returns the lower bound.
func (j *Jitter) Min() time.Duration {
	return j.min
}
