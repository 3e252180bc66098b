// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package flow keeps the server-side state of multi-step signup and password
// reset flows, keyed by session ID.
package flow

import (
	"errors"
	"sync"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/models"
)

var (
	ErrNoActiveFlow    = errors.New("no active flow")
	ErrNotVerified     = errors.New("flow not verified")
	ErrSubjectMismatch = errors.New("email does not match the active flow")
)

// Kind names a flow.
type Kind string

const (
	KindSignup Kind = "signup"
	KindReset  Kind = "reset"
)

// ParseKind converts a route parameter to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindSignup, KindReset:
		return Kind(s), true
	}
	return "", false
}

// Purpose returns the passcode purpose used by the flow.
func (k Kind) Purpose() models.Purpose {
	if k == KindSignup {
		return models.PurposeSignup
	}
	return models.PurposeReset
}

// State is a snapshot of one flow.
type State struct {
	Subject      models.Subject
	StartedAt    time.Time
	LastIssuedAt time.Time
	UpdatedAt    time.Time
	Attempts     int
	Verified     bool
	// PendingSignupID is the signup request a signup flow may promote.
	PendingSignupID int64
}

type key struct {
	sid  string
	kind Kind
}

// Store holds flow state in memory with an idle TTL.
type Store struct { //nolint:govet // fieldalignment not critical
	mu          sync.Mutex
	flows       map[key]*State
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a flow store.
func NewStore(ttl time.Duration, maxAttempts int, opts ...Option) *Store {
	s := &Store{
		flows:       make(map[key]*State),
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAttempts returns the failed-attempt cap.
func (s *Store) MaxAttempts() int {
	return s.maxAttempts
}

// Start begins a flow, replacing any earlier flow of the same kind.
func (s *Store) Start(sid string, kind Kind, subject models.Subject, issuedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.flows[key{sid, kind}] = &State{
		Subject:      subject,
		StartedAt:    now,
		LastIssuedAt: issuedAt,
		UpdatedAt:    now,
	}
}

// Get returns a copy of the flow state.
func (s *Store) Get(sid string, kind Kind) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(sid, kind)
	if err != nil {
		return State{}, err
	}
	return *st, nil
}

// Match returns the flow state if email matches its subject.
func (s *Store) Match(sid string, kind Kind, email string) (State, error) {
	st, err := s.Get(sid, kind)
	if err != nil {
		return State{}, err
	}
	if email != "" && models.NormalizeEmail(email) != st.Subject.Email {
		return State{}, ErrSubjectMismatch
	}
	return st, nil
}

// RecordIssued notes a fresh code. Attempts and verification start over.
func (s *Store) RecordIssued(sid string, kind Kind, issuedAt time.Time) error {
	return s.update(sid, kind, func(st *State) {
		st.LastIssuedAt = issuedAt
		st.Attempts = 0
		st.Verified = false
	})
}

// BindPendingSignup ties the flow to the signup request it started.
func (s *Store) BindPendingSignup(sid string, kind Kind, id int64) error {
	return s.update(sid, kind, func(st *State) {
		st.PendingSignupID = id
	})
}

// MarkVerified records a successful code check.
func (s *Store) MarkVerified(sid string, kind Kind) error {
	return s.update(sid, kind, func(st *State) {
		st.Verified = true
	})
}

// Verified succeeds when the flow exists, belongs to subject and has been
// verified.
func (s *Store) Verified(sid string, kind Kind, subject models.Subject) error {
	st, err := s.Get(sid, kind)
	if err != nil {
		return err
	}
	if st.Subject != subject {
		return ErrSubjectMismatch
	}
	if !st.Verified {
		return ErrNotVerified
	}
	return nil
}

// Attempts returns the number of failed attempts, zero without a flow.
func (s *Store) Attempts(sid string, kind Kind) int {
	st, err := s.Get(sid, kind)
	if err != nil {
		return 0
	}
	return st.Attempts
}

// RecordFailedAttempt counts a failed verification. When the cap is reached
// the flow is discarded and exhausted is true.
func (s *Store) RecordFailedAttempt(sid string, kind Kind) (remaining int, exhausted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(sid, kind)
	if err != nil {
		return 0, false, err
	}

	st.Attempts++
	st.UpdatedAt = s.now()
	if st.Attempts >= s.maxAttempts {
		delete(s.flows, key{sid, kind})
		return 0, true, nil
	}
	return s.maxAttempts - st.Attempts, false, nil
}

// ResetAttempts sets the failed-attempt counter back to zero.
func (s *Store) ResetAttempts(sid string, kind Kind) error {
	return s.update(sid, kind, func(st *State) {
		st.Attempts = 0
	})
}

// Clear removes one flow.
func (s *Store) Clear(sid string, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, key{sid, kind})
}

// ClearSession removes every flow of a session.
func (s *Store) ClearSession(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.flows {
		if k.sid == sid {
			delete(s.flows, k)
		}
	}
}

// Sweep drops idle flows and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, st := range s.flows {
		if s.expired(st, now) {
			delete(s.flows, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored flows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

func (s *Store) update(sid string, kind Kind, fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.lookup(sid, kind)
	if err != nil {
		return err
	}
	fn(st)
	st.UpdatedAt = s.now()
	return nil
}

// lookup must be called with mu held.
func (s *Store) lookup(sid string, kind Kind) (*State, error) {
	k := key{sid, kind}
	st, ok := s.flows[k]
	if !ok {
		return nil, ErrNoActiveFlow
	}
	if s.expired(st, s.now()) {
		delete(s.flows, k)
		return nil, ErrNoActiveFlow
	}
	return st, nil
}

func (s *Store) expired(st *State, now time.Time) bool {
	return now.Sub(st.UpdatedAt) >= s.ttl
}
