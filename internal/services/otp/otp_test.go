// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/config"
	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/otp"
	"codeberg.org/oliverandrich/resumekit/internal/services/ratelimit"
	"codeberg.org/oliverandrich/resumekit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo  *repository.Repository
	clock *testutil.Clock
	mgr   *otp.Manager
}

func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock(t0)
	cfg := &config.OTPConfig{
		TTL:            10 * time.Minute,
		SignupCooldown: 60 * time.Second,
		ResetCooldown:  60 * time.Second,
		MaxAttempts:    5,
	}
	limiter := ratelimit.New(cfg, repo, ratelimit.WithClock(clock.Now))

	opts := []otp.Option{otp.WithClock(clock.Now)}
	if len(codes) > 0 {
		opts = append(opts, otp.WithGenerator(testutil.Codes(codes...)))
	}

	return &fixture{repo: repo, clock: clock, mgr: otp.NewManager(repo, limiter, cfg, opts...)}
}

func resetSubject() models.Subject {
	return models.NewSubject(models.PurposeReset, "alice@example.com")
}

func TestIssue(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()

	issued, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})

	require.NoError(t, err)
	assert.Equal(t, "123456", issued.Code)
	assert.Equal(t, otp.HashCode("123456"), issued.Passcode.CodeHash)
	assert.Equal(t, "reset:alice@example.com", issued.Passcode.Subject)
	assert.True(t, issued.Passcode.IssuedAt.Equal(t0))

	stored, err := f.repo.LatestLivePasscode(ctx, resetSubject().String())
	require.NoError(t, err)
	assert.NotEqual(t, "123456", stored.CodeHash)
}

func TestIssue_InvalidSubject(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Issue(context.Background(), otp.IssueParams{Subject: models.Subject{Purpose: "login", Email: "a@example.com"}})

	assert.Error(t, err)
}

func TestIssue_RateLimited(t *testing.T) {
	f := newFixture(t, "111111", "222222")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	_, err = f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})

	require.ErrorIs(t, err, otp.ErrRateLimited)
	var rl *otp.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 50*time.Second, rl.RetryAfter)

	// The rejected request wrote nothing.
	codes, err := f.repo.ListPasscodes(ctx, resetSubject().String())
	require.NoError(t, err)
	assert.Len(t, codes, 1)
}

func TestIssue_SupersedesPreviousCode(t *testing.T) {
	f := newFixture(t, "111111", "222222")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	_, err = f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	_, err = f.mgr.Check(ctx, resetSubject(), "111111")
	assert.ErrorIs(t, err, otp.ErrCodeMismatch)

	_, err = f.mgr.Check(ctx, resetSubject(), "222222")
	assert.NoError(t, err)

	codes, err := f.repo.ListPasscodes(ctx, resetSubject().String())
	require.NoError(t, err)
	live := 0
	for i := range codes {
		if codes[i].Live() {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestIssue_CooldownCountsConsumedCodes(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)
	_, err = f.mgr.Verify(ctx, resetSubject(), "111111")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	_, err = f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})

	assert.ErrorIs(t, err, otp.ErrRateLimited)
}

func TestIssue_ConcurrentRequestsIssueOneCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, otp.ErrRateLimited)
	}
	assert.Equal(t, 1, succeeded)
}

func TestCheck_Failures(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()

	_, err := f.mgr.Check(ctx, resetSubject(), "123456")
	assert.ErrorIs(t, err, otp.ErrCodeNotFound)

	_, err = f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	_, err = f.mgr.Check(ctx, resetSubject(), "654321")
	assert.ErrorIs(t, err, otp.ErrCodeMismatch)

	f.clock.Advance(10 * time.Minute)
	_, err = f.mgr.Check(ctx, resetSubject(), "123456")
	assert.ErrorIs(t, err, otp.ErrCodeExpired, "a code is expired exactly at the ttl")
}

func TestCheck_ExpiryTakesPrecedenceOverMismatch(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	_, err = f.mgr.Check(ctx, resetSubject(), "000000")

	assert.ErrorIs(t, err, otp.ErrCodeExpired)
}

func TestCheck_DoesNotConsume(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	_, err = f.mgr.Check(ctx, resetSubject(), "123456")
	require.NoError(t, err)
	_, err = f.mgr.Check(ctx, resetSubject(), "123456")
	assert.NoError(t, err)
}

func TestCheck_SubjectsAreIsolated(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	_, err = f.mgr.Check(ctx, models.NewSubject(models.PurposeSignup, "alice@example.com"), "123456")
	assert.ErrorIs(t, err, otp.ErrCodeNotFound)

	_, err = f.mgr.Check(ctx, models.NewSubject(models.PurposeReset, "bob@example.com"), "123456")
	assert.ErrorIs(t, err, otp.ErrCodeNotFound)
}

func TestVerify_ConsumesOnce(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	p, err := f.mgr.Verify(ctx, resetSubject(), "123456")
	require.NoError(t, err)
	assert.NotZero(t, p.ID)

	_, err = f.mgr.Verify(ctx, resetSubject(), "123456")
	assert.ErrorIs(t, err, otp.ErrCodeNotFound)
}

func TestVerify_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.mgr.Verify(ctx, resetSubject(), "123456")
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, otp.ErrCodeNotFound)
	}
	assert.Equal(t, 1, won)
}

func TestVerifyAndApply_RollsBackOnApplyError(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)
	boom := errors.New("apply failed")

	_, err = f.mgr.VerifyAndApply(ctx, resetSubject(), "123456",
		func(ctx context.Context, tx *repository.Repository, p *models.Passcode) error {
			return boom
		})
	require.ErrorIs(t, err, boom)

	_, err = f.mgr.Check(ctx, resetSubject(), "123456")
	assert.NoError(t, err, "the code stays live when the action fails")
}

func TestVerifyAndApply_RunsInsideTransaction(t *testing.T) {
	f := newFixture(t, "123456")
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice@example.com")
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject(), UserID: &user.ID})
	require.NoError(t, err)

	_, err = f.mgr.VerifyAndApply(ctx, resetSubject(), "123456",
		func(ctx context.Context, tx *repository.Repository, p *models.Passcode) error {
			require.NotNil(t, p.UserID)
			return tx.UpdateUserPassword(ctx, *p.UserID, "new-hash", t0)
		})
	require.NoError(t, err)

	updated, err := f.repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", updated.PasswordHash)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t, "111111", "222222")
	ctx := context.Background()
	issued, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	assert.Nil(t, issued.Superseded)

	require.NoError(t, f.mgr.Revoke(ctx, issued))
	require.NoError(t, f.mgr.Revoke(ctx, issued))

	_, err = f.mgr.Check(ctx, resetSubject(), "111111")
	assert.ErrorIs(t, err, otp.ErrCodeNotFound)

	// A revoked issuance does not hold back the next attempt.
	_, err = f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	assert.NoError(t, err)
}

func TestRevoke_RestoresSupersededCode(t *testing.T) {
	f := newFixture(t, "111111", "222222", "333333")
	ctx := context.Background()
	first, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	second, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)
	require.NotNil(t, second.Superseded)
	assert.Equal(t, first.Passcode.ID, *second.Superseded)

	require.NoError(t, f.mgr.Revoke(ctx, second))

	_, err = f.mgr.Check(ctx, resetSubject(), "222222")
	assert.ErrorIs(t, err, otp.ErrCodeMismatch)
	_, err = f.mgr.Verify(ctx, resetSubject(), "111111")
	require.NoError(t, err, "the earlier code works again")

	// The cooldown is measured from the restored code again.
	issued, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)
	assert.Equal(t, "333333", issued.Code)
}

func TestRevoke_KeepsNewerIssuance(t *testing.T) {
	f := newFixture(t, "111111", "222222", "333333")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	second, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)
	f.clock.Advance(61 * time.Second)
	_, err = f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	require.NoError(t, f.mgr.Revoke(ctx, second))

	_, err = f.mgr.Check(ctx, resetSubject(), "333333")
	assert.NoError(t, err)
	_, err = f.mgr.Check(ctx, resetSubject(), "111111")
	assert.ErrorIs(t, err, otp.ErrCodeMismatch)
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	require.NoError(t, f.mgr.Invalidate(ctx, resetSubject()))

	_, err = f.mgr.Check(ctx, resetSubject(), "111111")
	assert.ErrorIs(t, err, otp.ErrCodeNotFound)
}

func TestSweep(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.mgr.Issue(ctx, otp.IssueParams{Subject: resetSubject()})
	require.NoError(t, err)

	n, err := f.mgr.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(25 * time.Hour)
	n, err = f.mgr.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIsCodeFailure(t *testing.T) {
	assert.True(t, otp.IsCodeFailure(otp.ErrCodeExpired))
	assert.True(t, otp.IsCodeFailure(otp.ErrCodeMismatch))
	assert.True(t, otp.IsCodeFailure(otp.ErrCodeNotFound))
	assert.False(t, otp.IsCodeFailure(otp.ErrRateLimited))
	assert.False(t, otp.IsCodeFailure(&otp.RateLimitedError{RetryAfter: time.Second}))
}
