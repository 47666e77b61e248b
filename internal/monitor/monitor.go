// Package monitor owns the single authoritative activity mode. It applies
// protection windows to explicit events and decays the mode towards idle
// when the agent goes quiet.
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/zsprackett/agent-pulse/internal/activity"
)

const (
	DefaultInterval        = 500 * time.Millisecond
	DefaultIdleTimeout     = 25 * time.Second
	DefaultThinkingTimeout = 3 * time.Second
)

// Handler receives every mode change. It runs while the Machine is locked
// and must not call back into it.
type Handler func(msg activity.StateMessage)

type Option func(*Machine)

// WithClock replaces the time source. Used in tests only.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithInterval(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

func WithThinkingTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.thinkingTimeout = d
		}
	}
}

// Machine is the activity state machine. All reads and writes of the mode,
// the protection window and the last event time happen under mu, so Emit
// and Tick never interleave.
type Machine struct {
	mu             sync.Mutex
	mode           activity.Mode
	lastEvent      time.Time
	protectedUntil time.Time // zero when no protection is active
	handlers       []Handler

	now             func() time.Time
	interval        time.Duration
	idleTimeout     time.Duration
	thinkingTimeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func New(logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		mode:            activity.ModeIdle,
		now:             time.Now,
		interval:        DefaultInterval,
		idleTimeout:     DefaultIdleTimeout,
		thinkingTimeout: DefaultThinkingTimeout,
		stop:            make(chan struct{}),
		logger:          logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastEvent = m.now()
	return m
}

// Start launches the decay ticker. Calling it more than once has no effect.
func (m *Machine) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(m.interval)
			defer ticker.Stop()
			for {
				select {
				case <-m.stop:
					return
				case <-ticker.C:
					m.Tick()
				}
			}
		}()
	})
}

// Stop cancels the decay ticker and waits for it to exit. Safe to call more
// than once, and before Start.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// OnChange registers h. Handlers are invoked in registration order.
func (m *Machine) OnChange(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Emit records an explicit activity event. A positive protection shields
// celebrate and error from silence decay until it expires; zero clears any
// existing window. Handlers only run when the mode actually changes.
func (m *Machine) Emit(mode activity.Mode, protection time.Duration) {
	if !mode.Valid() {
		m.logger.Warn("monitor: ignoring unknown mode", "mode", string(mode))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.lastEvent = now
	if protection > 0 {
		m.protectedUntil = now.Add(protection)
	} else {
		m.protectedUntil = time.Time{}
	}
	m.transition(mode, now, "event")
}

// Tick applies one round of decay. An expired protection window is lifted
// but never forces a change on its own; the mode only moves once a silence
// threshold is met.
func (m *Machine) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.protectedUntil.IsZero() && !now.Before(m.protectedUntil) {
		m.protectedUntil = time.Time{}
	}
	if m.mode.Feedback() && !m.protectedUntil.IsZero() {
		return
	}

	silence := now.Sub(m.lastEvent)
	switch {
	case silence >= m.idleTimeout && m.mode != activity.ModeIdle:
		m.transition(activity.ModeIdle, now, "idle timeout")
	case silence >= m.thinkingTimeout && m.mode != activity.ModeIdle:
		m.transition(activity.ModeThinking, now, "thinking timeout")
	}
}

// Mode returns the current mode.
func (m *Machine) Mode() activity.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Snapshot returns a fresh StateMessage for the current mode.
func (m *Machine) Snapshot() activity.StateMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return activity.NewStateMessage(m.mode, m.now())
}

// View runs fn with a snapshot while holding the lock, so no change can be
// broadcast between the snapshot and whatever fn registers.
func (m *Machine) View(fn func(activity.StateMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(activity.NewStateMessage(m.mode, m.now()))
}

// Protected reports whether a protection window is currently recorded.
func (m *Machine) Protected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.protectedUntil.IsZero()
}

// LastEvent returns the time of the most recent Emit.
func (m *Machine) LastEvent() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEvent
}

// transition must be called with mu held.
func (m *Machine) transition(mode activity.Mode, now time.Time, reason string) {
	if mode == m.mode {
		return
	}
	m.logger.Debug("monitor: mode changed",
		"from", string(m.mode),
		"to", string(mode),
		"reason", reason,
	)
	m.mode = mode
	msg := activity.NewStateMessage(mode, now)
	for _, h := range m.handlers {
		h(msg)
	}
}
