// Package breaker provides the circuit breaker guarding calls to the
// external signing authority. Each breaker owns a bounded sliding window
// of call outcomes; one instance exists per signing-key/authority pair.
package breaker

import (
	"sync"
	"time"

	"certnode/internal/domain"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 5
	defaultVolumeThreshold  = 10
	defaultSuccessThreshold = 2
	defaultWindow           = time.Minute
	defaultMaxSamples       = 128
	defaultRecoveryTimeout  = 30 * time.Second
)

type Settings struct {
	// FailureThreshold is the failure count within the window that trips
	// the breaker once VolumeThreshold samples are present.
	FailureThreshold int
	// VolumeThreshold is the minimum sample count before the failure
	// threshold is evaluated.
	VolumeThreshold int
	// SuccessThreshold is the consecutive half-open successes required to
	// close the breaker; it also bounds concurrent trial calls.
	SuccessThreshold int
	// Window is the age bound for window samples.
	Window time.Duration
	// MaxSamples caps the window size regardless of age.
	MaxSamples int
	// RecoveryTimeout is how long an open breaker refuses calls before
	// allowing a half-open probe.
	RecoveryTimeout time.Duration
	// Now is injectable for tests.
	Now func() time.Time
}

type sample struct {
	at       time.Time
	success  bool
	duration time.Duration
	err      error
}

type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	volumeThreshold  int
	successThreshold int
	window           time.Duration
	maxSamples       int
	recoveryTimeout  time.Duration
	now              func() time.Time

	state             State
	samples           []sample
	openedAt          time.Time
	halfOpenSuccesses int
	halfOpenInFlight  int
}

func New(s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = defaultFailureThreshold
	}
	if s.VolumeThreshold <= 0 {
		s.VolumeThreshold = defaultVolumeThreshold
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = defaultSuccessThreshold
	}
	if s.Window <= 0 {
		s.Window = defaultWindow
	}
	if s.MaxSamples <= 0 {
		s.MaxSamples = defaultMaxSamples
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = defaultRecoveryTimeout
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{
		failureThreshold: s.FailureThreshold,
		volumeThreshold:  s.VolumeThreshold,
		successThreshold: s.SuccessThreshold,
		window:           s.Window,
		maxSamples:       s.MaxSamples,
		recoveryTimeout:  s.RecoveryTimeout,
		now:              s.Now,
		state:            StateClosed,
		samples:          make([]sample, 0, s.MaxSamples),
	}
}

// Allow reports whether a call may proceed. An open breaker refuses with
// CircuitOpenError carrying the earliest next attempt time; once the
// recovery timeout has elapsed the breaker moves to half-open and admits
// a bounded number of trial calls.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.prune(now)

	switch b.state {
	case StateOpen:
		next := b.openedAt.Add(b.recoveryTimeout)
		if now.Before(next) {
			return &domain.CircuitOpenError{NextAttemptAt: next}
		}
		b.state = StateHalfOpen
		b.halfOpenSuccesses = 0
		b.halfOpenInFlight = 0
		fallthrough
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.successThreshold {
			return &domain.CircuitOpenError{NextAttemptAt: now}
		}
		b.halfOpenInFlight++
	}
	return nil
}

// Record stores one call outcome and applies state transitions. A timeout
// counts as failure like any other error.
func (b *Breaker) Record(success bool, duration time.Duration, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.samples = append(b.samples, sample{at: now, success: success, duration: duration, err: err})
	b.prune(now)

	switch b.state {
	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if !success {
			b.trip(now)
			return
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.successThreshold {
			b.reset()
		}
	case StateClosed:
		if len(b.samples) >= b.volumeThreshold && b.failures() >= b.failureThreshold {
			b.trip(now)
		}
	}
}

// State returns the current state, accounting for an elapsed recovery
// timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.recoveryTimeout)) {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.halfOpenSuccesses = 0
	b.halfOpenInFlight = 0
	b.samples = b.samples[:0]
}

func (b *Breaker) reset() {
	b.state = StateClosed
	b.halfOpenSuccesses = 0
	b.halfOpenInFlight = 0
	b.samples = b.samples[:0]
}

func (b *Breaker) failures() int {
	n := 0
	for _, s := range b.samples {
		if !s.success {
			n++
		}
	}
	return n
}

// prune drops samples older than the window and keeps the buffer under
// MaxSamples, oldest first.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.window)
	drop := 0
	for drop < len(b.samples) && b.samples[drop].at.Before(cutoff) {
		drop++
	}
	if over := len(b.samples) - drop - b.maxSamples; over > 0 {
		drop += over
	}
	if drop > 0 {
		b.samples = append(b.samples[:0], b.samples[drop:]...)
	}
}
