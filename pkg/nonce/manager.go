// Package nonce issues the monotonic UTC-millisecond nonces bound into every
// signed exchange request and tracks the replay window the exchange enforces.
package nonce

import (
	"sync"

	"github.com/uhyunpark/hyperflow/pkg/util"
)

const (
	// WindowSize is how many recently issued nonces the exchange remembers.
	// A nonce equal to any of them is rejected as a replay.
	WindowSize = 100

	msPerDay = 86_400_000

	// Accepted validity range relative to current time: (now-2d, now+1d).
	maxAgeMs    = 2 * msPerDay
	maxFutureMs = 1 * msPerDay
)

// Manager hands out strictly increasing nonces. Issuance is serialized so
// concurrent order placement and DMS firing can never observe the same value.
type Manager struct {
	mu     sync.Mutex
	clock  util.Clock
	last   int64
	recent []int64 // insertion order defines recency, newest last
}

func NewManager(clock util.Clock) *Manager {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Manager{clock: clock, recent: make([]int64, 0, WindowSize)}
}

// Restore seeds the manager from persisted state so a fast restart cannot
// reuse a nonce issued just before the previous process died.
func Restore(clock util.Clock, last int64, recent []int64) *Manager {
	m := NewManager(clock)
	m.last = last
	if len(recent) > WindowSize {
		recent = recent[len(recent)-WindowSize:]
	}
	m.recent = append(m.recent, recent...)
	return m
}

// Next returns the next nonce. If the wall clock has not advanced past the
// previously issued nonce, logical time advances by 1ms instead; Next never
// fails.
func (m *Manager) Next() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.clock.Now().UnixMilli()
	if n <= m.last {
		n = m.last + 1
	}
	m.last = n
	m.append(n)
	return n
}

// Record notes a nonce observed from outside (e.g. an envelope signed by
// another process for the same key) so local issuance stays ahead of it.
func (m *Manager) Record(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.last {
		m.last = n
	}
	m.append(n)
}

// Seen reports whether n is in the recent window.
func (m *Manager) Seen(n int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recent {
		if r == n {
			return true
		}
	}
	return false
}

// WithinWindow reports whether n lies inside the exchange-accepted range
// (now-2d, now+1d).
func (m *Manager) WithinWindow(n int64) bool {
	now := m.clock.Now().UnixMilli()
	return now-maxAgeMs < n && n < now+maxFutureMs
}

// Validate reports whether n is usable: inside the validity range and not a
// replay of a recently issued nonce. Callers decide whether false is a hard
// abort (signing) or a soft warning (replay detection on inbound data).
func (m *Manager) Validate(n int64) bool {
	return m.WithinWindow(n) && !m.Seen(n)
}

// Snapshot returns the last-issued nonce and a copy of the recent window,
// newest last. Used for persistence.
func (m *Manager) Snapshot() (last int64, recent []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.recent))
	copy(out, m.recent)
	return m.last, out
}

func (m *Manager) append(n int64) {
	m.recent = append(m.recent, n)
	if len(m.recent) > WindowSize {
		m.recent = m.recent[len(m.recent)-WindowSize:]
	}
}
