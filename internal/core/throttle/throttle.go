// Package throttle implements the per-identity abuse guard: a fixed-capacity
// sliding window of admitted requests plus a failure counter that re-blocks the
// identity on every failure and escalates once the attempt budget is spent.
package throttle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/creditgate/creditgate/internal/core"
)

// ErrBlocked signals that the identity exhausted its attempt budget. No further
// automated retries should happen.
var ErrBlocked = errors.New("failure budget exhausted")

// Limits configures the throttle.
type Limits struct {
	MaxRequestsPerWindow int
	Window               time.Duration
	BlockDuration        time.Duration
	MaxAttempts          int
}

// DefaultLimits are used for any zero field in the configured limits.
var DefaultLimits = Limits{
	MaxRequestsPerWindow: 3,
	Window:               2 * time.Minute,
	BlockDuration:        30 * time.Second,
	MaxAttempts:          3,
}

func (l Limits) withDefaults() Limits {
	if l.MaxRequestsPerWindow <= 0 {
		l.MaxRequestsPerWindow = DefaultLimits.MaxRequestsPerWindow
	}
	if l.Window <= 0 {
		l.Window = DefaultLimits.Window
	}
	if l.BlockDuration <= 0 {
		l.BlockDuration = DefaultLimits.BlockDuration
	}
	if l.MaxAttempts <= 0 {
		l.MaxAttempts = DefaultLimits.MaxAttempts
	}
	return l
}

// Snapshot is a read-only copy of an identity's state.
type Snapshot struct {
	Identity       string     `json:"identity"`
	WindowSize     int        `json:"window_size"`
	BlockedSince   *time.Time `json:"blocked_since,omitempty"`
	Blocked        bool       `json:"blocked"`
	FailedAttempts int        `json:"failed_attempts"`
}

// Throttle owns every CallerState. A single mutex guards the map; per-client
// traffic is low enough that contention does not matter.
type Throttle struct {
	mu     sync.Mutex
	states map[string]*core.CallerState
	limits Limits
	clock  func() time.Time
}

// Option customises a Throttle.
type Option func(*Throttle)

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(t *Throttle) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// New creates a throttle with the given limits.
func New(limits Limits, opts ...Option) *Throttle {
	t := &Throttle{
		states: make(map[string]*core.CallerState),
		limits: limits.withDefaults(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Limits returns the effective limits.
func (t *Throttle) Limits() Limits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// Reconfigure swaps the limits. Existing state is kept.
func (t *Throttle) Reconfigure(limits Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = limits.withDefaults()
}

// IsAdmitted reports whether identity may proceed and, if so, records the
// request in its window. A nil throttle admits everything.
func (t *Throttle) IsAdmitted(identity string) bool {
	if t == nil {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	state := t.stateLocked(identity)

	if t.blockedLocked(state, now) {
		return false
	}

	t.evictLocked(state, now)
	if len(state.RecentRequests) >= t.limits.MaxRequestsPerWindow {
		return false
	}

	state.RecentRequests = append(state.RecentRequests, now)
	return true
}

// RecordFailure counts a failure and re-blocks the identity. It returns
// ErrBlocked once the post-increment count reaches MaxAttempts. A nil throttle
// counts nothing.
func (t *Throttle) RecordFailure(identity string) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	state := t.stateLocked(identity)
	state.FailedAttempts++
	state.BlockedSince = &now

	if state.FailedAttempts >= t.limits.MaxAttempts {
		return ErrBlocked
	}
	return nil
}

// ResetFailures clears the escalation counter only. The block timestamp and the
// window are left alone.
func (t *Throttle) ResetFailures(identity string) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[identity]; ok {
		state.FailedAttempts = 0
	}
}

// CurrentFailureCount returns 0 for unseen identities.
func (t *Throttle) CurrentFailureCount(identity string) int {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[identity]; ok {
		return state.FailedAttempts
	}
	return 0
}

// RetryAfter estimates how long identity must wait before it can be admitted.
func (t *Throttle) RetryAfter(identity string) time.Duration {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[identity]
	if !ok {
		return 0
	}

	now := t.clock()
	var wait time.Duration
	if t.blockedLocked(state, now) {
		wait = t.limits.BlockDuration - now.Sub(*state.BlockedSince)
	}

	recent := state.RecentRequests
	if len(recent) >= t.limits.MaxRequestsPerWindow {
		// The oldest entry that still counts decides when capacity frees up.
		oldest := recent[len(recent)-t.limits.MaxRequestsPerWindow]
		if windowWait := t.limits.Window - now.Sub(oldest); windowWait > wait {
			wait = windowWait
		}
	}

	if wait < 0 {
		return 0
	}
	return wait
}

// Snapshot returns a copy of identity's state.
func (t *Throttle) Snapshot(identity string) (Snapshot, bool) {
	if t == nil {
		return Snapshot{Identity: identity}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[identity]
	if !ok {
		return Snapshot{Identity: identity}, false
	}

	now := t.clock()
	snap := Snapshot{
		Identity:       identity,
		Blocked:        t.blockedLocked(state, now),
		FailedAttempts: state.FailedAttempts,
	}
	for _, ts := range state.RecentRequests {
		if now.Sub(ts) < t.limits.Window {
			snap.WindowSize++
		}
	}
	if state.BlockedSince != nil {
		since := *state.BlockedSince
		snap.BlockedSince = &since
	}
	return snap, true
}

// Len returns the number of tracked identities.
func (t *Throttle) Len() int {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

// Sweep drops identities that no longer carry any information: an empty window,
// no active block and a zero failure count. It returns the number removed.
func (t *Throttle) Sweep() int {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	removed := 0
	for identity, state := range t.states {
		t.evictLocked(state, now)
		if len(state.RecentRequests) > 0 || state.FailedAttempts > 0 {
			continue
		}
		if t.blockedLocked(state, now) {
			continue
		}
		delete(t.states, identity)
		removed++
	}
	return removed
}

// StartJanitor runs Sweep every interval until ctx is done.
func (t *Throttle) StartJanitor(ctx context.Context, every time.Duration, onSweep func(removed int)) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := t.Sweep()
				if onSweep != nil {
					onSweep(removed)
				}
			}
		}
	}()
}

func (t *Throttle) stateLocked(identity string) *core.CallerState {
	state, ok := t.states[identity]
	if !ok {
		state = &core.CallerState{}
		t.states[identity] = state
	}
	return state
}

// blockedLocked only looks at the block's age; an expired block stays in place.
func (t *Throttle) blockedLocked(state *core.CallerState, now time.Time) bool {
	if state.BlockedSince == nil {
		return false
	}
	return now.Sub(*state.BlockedSince) < t.limits.BlockDuration
}

func (t *Throttle) evictLocked(state *core.CallerState, now time.Time) {
	kept := state.RecentRequests[:0]
	for _, ts := range state.RecentRequests {
		if now.Sub(ts) < t.limits.Window {
			kept = append(kept, ts)
		}
	}
	state.RecentRequests = kept
}
