// Package mock provides an in-memory test double for [audit.Store].
//
// It records every method call for assertion in tests and exposes exported
// fields that control what it returns. Safe for concurrent use via an
// internal [sync.Mutex].
package mock

import (
	"context"
	"sync"

	"github.com/kestrelsoft/pse/internal/audit"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is a configurable test double for [audit.Store]. Recorded sessions
// accumulate in Sessions as RecordSession is called; RecentSessions serves
// them back most-recently-finished first unless RecentSessionsResult is set
// to override that behavior explicitly.
type Store struct {
	mu sync.Mutex

	calls []Call

	// Sessions accumulates every session passed to RecordSession, in call
	// order. RecentSessions reads from this slice by default.
	Sessions []audit.Session

	// RecordSessionErr is returned by RecordSession when non-nil.
	RecordSessionErr error

	// RecentSessionsResult, when non-nil, overrides the slice RecentSessions
	// derives from Sessions.
	RecentSessionsResult []audit.Session

	// RecentSessionsErr is returned by RecentSessions when non-nil.
	RecentSessionsErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls and sessions without altering error
// configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.Sessions = nil
}

// RecordSession implements [audit.Store].
func (m *Store) RecordSession(_ context.Context, s audit.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "RecordSession", Args: []any{s}})
	if m.RecordSessionErr != nil {
		return m.RecordSessionErr
	}
	for i, existing := range m.Sessions {
		if existing.ID != "" && existing.ID == s.ID {
			m.Sessions[i] = s
			return nil
		}
	}
	m.Sessions = append(m.Sessions, s)
	return nil
}

// RecentSessions implements [audit.Store]. Absent an explicit
// RecentSessionsResult override, it returns the most recently recorded
// sessions first (by FinishedAt, descending), capped at limit.
func (m *Store) RecentSessions(_ context.Context, limit int) ([]audit.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "RecentSessions", Args: []any{limit}})
	if m.RecentSessionsErr != nil {
		return nil, m.RecentSessionsErr
	}

	src := m.RecentSessionsResult
	if src == nil {
		src = make([]audit.Session, len(m.Sessions))
		copy(src, m.Sessions)
		sortSessionsByFinishedAtDesc(src)
	}
	if limit >= 0 && limit < len(src) {
		src = src[:limit]
	}
	out := make([]audit.Session, len(src))
	copy(out, src)
	return out, nil
}

func sortSessionsByFinishedAtDesc(s []audit.Session) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].FinishedAt.After(s[j-1].FinishedAt); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// Ensure Store satisfies the interface at compile time.
var _ audit.Store = (*Store)(nil)
