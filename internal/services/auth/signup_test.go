// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/repository"
	"codeberg.org/oliverandrich/resumekit/internal/services/account"
	"codeberg.org/oliverandrich/resumekit/internal/services/auth"
	"codeberg.org/oliverandrich/resumekit/internal/services/email"
	"codeberg.org/oliverandrich/resumekit/internal/services/flow"
	"codeberg.org/oliverandrich/resumekit/internal/services/otp"
	"codeberg.org/oliverandrich/resumekit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) signupRequest(t *testing.T, addr string) auth.SignupRequest {
	t.Helper()
	req, err := auth.NewSignupRequest("Alice", "Smith", addr, testutil.TestPassword, testutil.TestPassword, f.svc.PasswordValidator())
	require.NoError(t, err)
	return req
}

func TestSignup(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()

	status, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "Alice@Example.com"))

	require.NoError(t, err)
	assert.Equal(t, flow.KindSignup, status.Kind)
	assert.Equal(t, "alice@example.com", status.Email)
	assert.Equal(t, 60*time.Second, status.ResendIn)

	mail := f.lastMail(t)
	assert.Equal(t, "alice@example.com", mail.To)
	assert.Equal(t, "Verify your email - Resumekit", mail.Subject)
	assert.Contains(t, mail.Text, "111111")
	assert.Contains(t, mail.Text, "Alice")

	exists, err := f.repo.EmailExists(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, exists, "no account before verification")

	user, err := f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "111111")

	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "Alice", user.FirstName)
	assert.Equal(t, "Smith", user.LastName)

	_, err = f.repo.GetOpenPendingSignup(ctx, "alice@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound, "pending signup is promoted")

	_, err = f.svc.FlowStatus(sid, flow.KindSignup)
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)

	_, err = f.svc.Login(ctx, "alice@example.com", testutil.TestPassword)
	assert.NoError(t, err)
}

func TestSignup_CodeIsSingleUse(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)
	_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "111111")
	require.NoError(t, err)

	_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "111111")

	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)
}

func TestSignup_EmailTaken(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestUser(t, f.repo, "alice@example.com")

	_, err := f.svc.RequestSignupOTP(context.Background(), sid, f.signupRequest(t, "alice@example.com"))

	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	assert.Empty(t, f.sender.Sent())
}

func TestSignup_EmailBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.repo.CreateVacatedEmail(ctx, "carol@example.com", t0.Add(-24*time.Hour))
	require.NoError(t, err)

	_, err = f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "Carol@example.com"))
	require.ErrorIs(t, err, account.ErrEmailBlocked)
	assert.Empty(t, f.sender.Sent())

	f.clock.Advance(29 * 24 * time.Hour)
	_, err = f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "carol@example.com"))
	assert.NoError(t, err, "allowed once the cool-down has passed")
}

func TestSignup_BlockedBeforeVerification(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "carol@example.com"))
	require.NoError(t, err)
	_, err = f.repo.CreateVacatedEmail(ctx, "carol@example.com", t0)
	require.NoError(t, err)

	_, err = f.svc.VerifySignupOTP(ctx, sid, "carol@example.com", "111111")

	require.ErrorIs(t, err, account.ErrEmailBlocked)
	exists, err := f.repo.EmailExists(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = f.svc.FlowStatus(sid, flow.KindSignup)
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)
}

func TestSignup_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	_, err = f.svc.RequestSignupOTP(ctx, "session-2", f.signupRequest(t, "alice@example.com"))

	var rl *otp.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
	assert.Len(t, f.sender.Sent(), 1)
}

func TestSignup_WrongCodeCountsAttempts(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)

	for remaining := 4; remaining > 0; remaining-- {
		_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "999999")
		var ce *auth.CodeError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, remaining, ce.AttemptsRemaining)
		assert.ErrorIs(t, err, otp.ErrCodeMismatch)
	}

	_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "999999")
	require.ErrorIs(t, err, auth.ErrAttemptsExhausted)

	_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "111111")
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)

	_, err = f.repo.LatestLivePasscode(ctx, "signup:alice@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound, "the live code is superseded")
}

func TestSignup_ExpiredCode(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "111111")

	assert.ErrorIs(t, err, otp.ErrCodeExpired)
	var ce *auth.CodeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4, ce.AttemptsRemaining)
}

func TestSignup_SubjectMismatch(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)

	_, err = f.svc.VerifySignupOTP(ctx, sid, "mallory@example.com", "111111")

	assert.ErrorIs(t, err, flow.ErrSubjectMismatch)
}

func TestSignup_OtherSessionHasNoFlow(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)

	_, err = f.svc.VerifySignupOTP(ctx, "session-2", "alice@example.com", "111111")

	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)
}

func TestSignup_Resend(t *testing.T) {
	f := newFixture(t, "111111", "222222")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)

	_, err = f.svc.ResendSignupOTP(ctx, sid)
	require.ErrorIs(t, err, otp.ErrRateLimited)

	f.clock.Advance(time.Minute)
	_, err = f.svc.ResendSignupOTP(ctx, sid)
	require.NoError(t, err)

	mail := f.lastMail(t)
	assert.Equal(t, "New verification code - Resumekit", mail.Subject)
	assert.Contains(t, mail.Text, "222222")

	_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "111111")
	require.ErrorIs(t, err, otp.ErrCodeMismatch, "the first code is superseded")

	_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "222222")
	assert.NoError(t, err)
}

func TestSignup_ResendResetsAttempts(t *testing.T) {
	f := newFixture(t, "111111", "222222")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)
	for range 3 {
		_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "999999")
		require.Error(t, err)
	}

	f.clock.Advance(time.Minute)
	status, err := f.svc.ResendSignupOTP(ctx, sid)

	require.NoError(t, err)
	assert.Equal(t, 5, status.AttemptsRemaining)
}

func TestSignup_ResendWithoutFlow(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ResendSignupOTP(context.Background(), sid)

	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)
}

func TestSignup_DeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sender.SetErr(errors.New("connection refused"))

	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))

	require.ErrorIs(t, err, email.ErrDeliveryFailed)
	_, err = f.svc.FlowStatus(sid, flow.KindSignup)
	assert.ErrorIs(t, err, flow.ErrNoActiveFlow)
	_, err = f.repo.LatestLivePasscode(ctx, "signup:alice@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound, "undelivered code is revoked")

	f.sender.SetErr(nil)
	_, err = f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	assert.NoError(t, err, "a failed delivery does not start the cooldown")
}

func TestSignup_UsernameCollision(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	testutil.NewTestUser(t, f.repo, "alice@example.com")

	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.org"))
	require.NoError(t, err)
	user, err := f.svc.VerifySignupOTP(ctx, sid, "alice@example.org", "111111")

	require.NoError(t, err)
	assert.Equal(t, "alice1", user.Username)
}

func TestSignup_UsernameStripsUnsafeCharacters(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()

	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "o'brien+cv@example.com"))
	require.NoError(t, err)
	user, err := f.svc.VerifySignupOTP(ctx, sid, "o'brien+cv@example.com", "111111")

	require.NoError(t, err)
	assert.Equal(t, "obriencv", user.Username)
}

func TestSignup_ConcurrentVerify(t *testing.T) {
	f := newFixture(t, "111111")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "111111"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	user, err := f.repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestSignup_ReplacesOpenRequest(t *testing.T) {
	f := newFixture(t, "111111", "222222")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	req, err := auth.NewSignupRequest("Alicia", "Smith", "alice@example.com", testutil.TestPassword, testutil.TestPassword, f.svc.PasswordValidator())
	require.NoError(t, err)
	_, err = f.svc.RequestSignupOTP(ctx, sid, req)
	require.NoError(t, err)

	user, err := f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "222222")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", user.FirstName)

	codes, err := f.repo.ListPasscodes(ctx, models.NewSubject(models.PurposeSignup, "alice@example.com").String())
	require.NoError(t, err)
	assert.Len(t, codes, 2)
}

func TestSignup_CodeForAnotherSessionsRequest(t *testing.T) {
	f := newFixture(t, "111111", "222222", "333333")
	ctx := context.Background()
	_, err := f.svc.RequestSignupOTP(ctx, sid, f.signupRequest(t, "alice@example.com"))
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	other, err := auth.NewSignupRequest("Mal", "Lory", "alice@example.com", "Zebra-Quartz77", "Zebra-Quartz77", f.svc.PasswordValidator())
	require.NoError(t, err)
	_, err = f.svc.RequestSignupOTP(ctx, "session-2", other)
	require.NoError(t, err)

	// The newest code belongs to the second request and creates nothing
	// when entered in the first session.
	_, err = f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "222222")
	require.ErrorIs(t, err, otp.ErrCodeNotFound)
	var ce *auth.CodeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4, ce.AttemptsRemaining)
	exists, err := f.repo.EmailExists(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	f.clock.Advance(61 * time.Second)
	_, err = f.svc.ResendSignupOTP(ctx, sid)
	require.NoError(t, err)
	user, err := f.svc.VerifySignupOTP(ctx, sid, "alice@example.com", "333333")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.FirstName)

	_, err = f.svc.Login(ctx, "alice@example.com", testutil.TestPassword)
	assert.NoError(t, err)
	_, err = f.svc.Login(ctx, "alice@example.com", "Zebra-Quartz77")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}
