// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package flow_test

import (
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore() (*flow.Store, *testutil.Clock) {
	clock := testutil.NewClock(t0)
	return flow.NewStore(30*time.Minute, 5, flow.WithClock(clock.Now)), clock
}

func alice() models.Subject {
	return models.NewSubject(models.PurposeReset, "alice@example.com")
}

func TestParseKind(t *testing.T) {
	kind, ok := flow.ParseKind("signup")
	assert.True(t, ok)
	assert.Equal(t, flow.KindSignup, kind)

	kind, ok = flow.ParseKind("reset")
	assert.True(t, ok)
	assert.Equal(t, models.PurposeReset, kind.Purpose())

	_, ok = flow.ParseKind("login")
	assert.False(t, ok)
}

func TestStartAndGet(t *testing.T) {
	s, _ := newStore()

	s.Start("sid", flow.KindReset, alice(), t0)

	st, err := s.Get("sid", flow.KindReset)
	require.NoError(t, err)
	assert.Equal(t, alice(), st.Subject)
	assert.Equal(t, t0, st.LastIssuedAt)
	assert.Zero(t, st.Attempts)
	assert.False(t, st.Verified)
}

func TestGet_NoFlow(t *testing.T) {
	s, _ := newStore()
	s.Start("sid", flow.KindReset, alice(), t0)

	_, err := s.Get("sid", flow.KindSignup)
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)

	_, err = s.Get("other", flow.KindReset)
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)
}

func TestGet_Expired(t *testing.T) {
	s, clock := newStore()
	s.Start("sid", flow.KindReset, alice(), t0)

	clock.Advance(30 * time.Minute)

	_, err := s.Get("sid", flow.KindReset)
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)
	assert.Zero(t, s.Len())
}

func TestMatch(t *testing.T) {
	s, _ := newStore()
	s.Start("sid", flow.KindReset, alice(), t0)

	_, err := s.Match("sid", flow.KindReset, "ALICE@example.com")
	assert.NoError(t, err)

	_, err = s.Match("sid", flow.KindReset, "")
	assert.NoError(t, err)

	_, err = s.Match("sid", flow.KindReset, "mallory@example.com")
	assert.ErrorIs(t, err, flow.ErrSubjectMismatch)
}

func TestRecordFailedAttempt_ExhaustsAtCap(t *testing.T) {
	s, _ := newStore()
	s.Start("sid", flow.KindReset, alice(), t0)

	for i := 1; i <= 4; i++ {
		remaining, exhausted, err := s.RecordFailedAttempt("sid", flow.KindReset)
		require.NoError(t, err)
		assert.False(t, exhausted)
		assert.Equal(t, 5-i, remaining)
	}
	assert.Equal(t, 4, s.Attempts("sid", flow.KindReset))

	remaining, exhausted, err := s.RecordFailedAttempt("sid", flow.KindReset)
	require.NoError(t, err)
	assert.True(t, exhausted)
	assert.Zero(t, remaining)

	_, err = s.Get("sid", flow.KindReset)
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow, "the flow must be restarted")
}

func TestRecordFailedAttempt_Concurrent(t *testing.T) {
	s := flow.NewStore(time.Hour, 100)
	s.Start("sid", flow.KindSignup, alice(), t0)

	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.RecordFailedAttempt("sid", flow.KindSignup)
		}()
	}
	wg.Wait()

	assert.Equal(t, 40, s.Attempts("sid", flow.KindSignup))
}

func TestBindPendingSignup(t *testing.T) {
	s, _ := newStore()

	assert.ErrorIs(t, s.BindPendingSignup("sid", flow.KindSignup, 7), flow.ErrNoActiveFlow)

	s.Start("sid", flow.KindSignup, alice(), t0)
	require.NoError(t, s.BindPendingSignup("sid", flow.KindSignup, 7))

	st, err := s.Get("sid", flow.KindSignup)
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.PendingSignupID)

	s.Start("sid", flow.KindSignup, alice(), t0)
	st, err = s.Get("sid", flow.KindSignup)
	require.NoError(t, err)
	assert.Zero(t, st.PendingSignupID, "a restarted flow forgets the old request")
}

func TestRecordIssued_ResetsAttemptsAndVerification(t *testing.T) {
	s, clock := newStore()
	s.Start("sid", flow.KindReset, alice(), t0)
	_, _, err := s.RecordFailedAttempt("sid", flow.KindReset)
	require.NoError(t, err)
	require.NoError(t, s.MarkVerified("sid", flow.KindReset))

	clock.Advance(time.Minute)
	require.NoError(t, s.RecordIssued("sid", flow.KindReset, clock.Now()))

	st, err := s.Get("sid", flow.KindReset)
	require.NoError(t, err)
	assert.Zero(t, st.Attempts)
	assert.False(t, st.Verified)
	assert.Equal(t, t0.Add(time.Minute), st.LastIssuedAt)
}

func TestVerified(t *testing.T) {
	s, _ := newStore()

	assert.ErrorIs(t, s.Verified("sid", flow.KindReset, alice()), flow.ErrNoActiveFlow)

	s.Start("sid", flow.KindReset, alice(), t0)
	assert.ErrorIs(t, s.Verified("sid", flow.KindReset, alice()), flow.ErrNotVerified)

	require.NoError(t, s.MarkVerified("sid", flow.KindReset))
	assert.NoError(t, s.Verified("sid", flow.KindReset, alice()))

	bob := models.NewSubject(models.PurposeReset, "bob@example.com")
	assert.ErrorIs(t, s.Verified("sid", flow.KindReset, bob), flow.ErrSubjectMismatch)
}

func TestResetAttempts(t *testing.T) {
	s, _ := newStore()
	s.Start("sid", flow.KindSignup, alice(), t0)
	_, _, err := s.RecordFailedAttempt("sid", flow.KindSignup)
	require.NoError(t, err)

	require.NoError(t, s.ResetAttempts("sid", flow.KindSignup))

	assert.Zero(t, s.Attempts("sid", flow.KindSignup))
	assert.ErrorIs(t, s.ResetAttempts("other", flow.KindSignup), flow.ErrNoActiveFlow)
}

func TestClearAndClearSession(t *testing.T) {
	s, _ := newStore()
	s.Start("sid", flow.KindSignup, alice(), t0)
	s.Start("sid", flow.KindReset, alice(), t0)
	s.Start("other", flow.KindReset, alice(), t0)

	s.Clear("sid", flow.KindSignup)
	_, err := s.Get("sid", flow.KindSignup)
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)

	s.ClearSession("sid")
	_, err = s.Get("sid", flow.KindReset)
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)

	_, err = s.Get("other", flow.KindReset)
	assert.NoError(t, err)
}

func TestSweep(t *testing.T) {
	s, clock := newStore()
	s.Start("old", flow.KindSignup, alice(), t0)
	clock.Advance(20 * time.Minute)
	s.Start("fresh", flow.KindSignup, alice(), clock.Now())
	clock.Advance(15 * time.Minute)

	removed := s.Sweep()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}

func TestActivityExtendsFlow(t *testing.T) {
	s, clock := newStore()
	s.Start("sid", flow.KindReset, alice(), t0)

	clock.Advance(20 * time.Minute)
	require.NoError(t, s.MarkVerified("sid", flow.KindReset))
	clock.Advance(20 * time.Minute)

	_, err := s.Get("sid", flow.KindReset)
	assert.NoError(t, err)
}
