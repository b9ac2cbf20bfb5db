package service

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/credvault/internal/core/domain"
)

// LockoutPolicy configures unlock throttling.
type LockoutPolicy struct {
	// MaxFailures is the number of consecutive failures that triggers a lockout.
	MaxFailures int

	// Cooldown is the first lockout duration. Each further failure while at
	// or above MaxFailures doubles it.
	Cooldown time.Duration

	// MaxCooldown caps the lockout duration.
	MaxCooldown time.Duration

	// Rate is the sustained unlock attempts per second per vault.
	// Zero disables pacing.
	Rate float64

	// Burst is the number of attempts allowed at once.
	Burst int
}

// DefaultLockoutPolicy returns the default policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
		MaxCooldown: 30 * time.Minute,
		Rate:        2,
		Burst:       5,
	}
}

// cooldownFor returns the lockout duration after failures consecutive
// failures, or zero when not locked.
func (p LockoutPolicy) cooldownFor(failures int) time.Duration {
	if p.MaxFailures <= 0 || failures < p.MaxFailures {
		return 0
	}
	limit := p.MaxCooldown
	if limit < p.Cooldown {
		limit = p.Cooldown
	}
	d := p.Cooldown
	for i := p.MaxFailures; i < failures && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

type lockoutState struct {
	failures int
	until    time.Time
	seeded   bool
	limiter  *rate.Limiter
}

// lockoutTracker keeps per-vault failure counters and attempt limiters.
type lockoutTracker struct {
	policy LockoutPolicy

	mu     sync.Mutex
	states map[string]*lockoutState
}

func newLockoutTracker(policy LockoutPolicy) *lockoutTracker {
	return &lockoutTracker{
		policy: policy,
		states: make(map[string]*lockoutState),
	}
}

func (t *lockoutTracker) stateLocked(path string) *lockoutState {
	st, ok := t.states[path]
	if !ok {
		st = &lockoutState{}
		if t.policy.Rate > 0 {
			burst := t.policy.Burst
			if burst <= 0 {
				burst = 1
			}
			st.limiter = rate.NewLimiter(rate.Limit(t.policy.Rate), burst)
		}
		t.states[path] = st
	}
	return st
}

// seed initializes the counter for path from persisted history once.
func (t *lockoutTracker) seed(path string, failures int, last time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.stateLocked(path)
	if st.seeded {
		return
	}
	st.seeded = true
	if failures > st.failures {
		st.failures = failures
		if d := t.policy.cooldownFor(failures); d > 0 {
			st.until = last.Add(d)
		}
	}
}

func (t *lockoutTracker) seeded(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked(path).seeded
}

// admit decides whether an attempt on path may proceed at now. Only
// failed attempts spend the rate budget: the caller must call the
// returned release when the attempt succeeds or is abandoned.
func (t *lockoutTracker) admit(path string, now time.Time) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.stateLocked(path)
	if now.Before(st.until) {
		return nil, domain.ErrLockedOut.WithDetails(
			fmt.Sprintf("retry in %s", st.until.Sub(now).Round(time.Second)))
	}
	if st.limiter == nil {
		return func() {}, nil
	}
	r := st.limiter.ReserveN(now, 1)
	if !r.OK() || r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return nil, domain.ErrLockedOut.WithDetails("unlock attempts too frequent")
	}
	return func() { r.CancelAt(now) }, nil
}

// failure records a failed attempt and reports whether it started a lockout.
func (t *lockoutTracker) failure(path string, now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.stateLocked(path)
	st.failures++
	d := t.policy.cooldownFor(st.failures)
	if d == 0 {
		return 0, false
	}
	st.until = now.Add(d)
	return d, true
}

// success clears the failure counter.
func (t *lockoutTracker) success(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.stateLocked(path)
	st.failures = 0
	st.until = time.Time{}
}
