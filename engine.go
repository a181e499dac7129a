package authcore

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/mintlane/authcore/internal/rate"
	"github.com/mintlane/authcore/jwt"
	"github.com/mintlane/authcore/password"
	"github.com/mintlane/authcore/token"
)

// Engine is the credential and token lifecycle core. All methods are safe
// for concurrent use after [Builder.Build]. Each call runs to completion or
// fails; timeouts belong to the caller's HTTP layer.
//
// The argon2 work on the login and redemption paths is deliberately slow
// (tens of milliseconds) and executes synchronously on the calling
// goroutine; nothing in the engine serializes unrelated requests around it.
type Engine struct {
	config Config

	repo     AccountRepository
	sender   EmailSender
	hasher   *password.Argon2
	codec    *token.Codec
	sessions *jwt.Manager
	limiter  *rate.Limiter

	dispatcher *auditDispatcher
	logger     *slog.Logger
	metrics    engineMetrics

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	timingPadOnce sync.Once
	timingPad     string
}

// RateCategory names a limited action for the operational surface.
type RateCategory string

const (
	RateLogin              RateCategory = RateCategory(rate.CategoryLogin)
	RateRegister           RateCategory = RateCategory(rate.CategoryRegister)
	RateResetRequest       RateCategory = RateCategory(rate.CategoryResetRequest)
	RateResetRedeem        RateCategory = RateCategory(rate.CategoryResetRedeem)
	RateResendVerification RateCategory = RateCategory(rate.CategoryResendVerification)
)

// Close stops the sweep workers and drains the audit dispatcher. Idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		e.dispatcher.Close()
	})
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.snapshot()
}

// AuditDropped reports how many audit events were dropped by a full buffer.
func (e *Engine) AuditDropped() uint64 {
	return e.dispatcher.Dropped()
}

// SecondsUntilReset reports the remaining rate-limit window for an actor
// without consuming quota.
func (e *Engine) SecondsUntilReset(ctx context.Context, category RateCategory, ip, email string) (int, error) {
	return e.limiter.SecondsUntilReset(ctx, rate.Category(category), rate.ActorKey(ip, NormalizeEmail(email)))
}

// ClearRateLimit drops the counter for one actor bucket. Operational escape
// hatch, gated behind Config.RateLimit.AllowManualClear and intended for
// non-production profiles only.
func (e *Engine) ClearRateLimit(ctx context.Context, category RateCategory, ip, email string) error {
	if !e.config.RateLimit.AllowManualClear {
		return NewValidationError("manual rate limit clearing is disabled")
	}
	if err := e.limiter.Clear(ctx, rate.Category(category), rate.ActorKey(ip, NormalizeEmail(email))); err != nil {
		return newInternalError(err)
	}
	return nil
}

// checkLimit consumes one unit of quota and converts a throttle into the
// caller-visible error, emitting the rate_limit audit event and metric.
func (e *Engine) checkLimit(ctx context.Context, category rate.Category, actorKey string, throttledMetric MetricID) error {
	result, err := e.limiter.Check(ctx, category, actorKey)
	if err != nil {
		e.logError("rate limit store failure", err, slog.String("category", string(category)))
		return newInternalError(err)
	}
	if result.Allowed {
		return nil
	}

	e.metrics.inc(MetricRateLimitHit)
	e.metrics.inc(throttledMetric)
	e.emitAudit(ctx, AuditEvent{
		Action:  auditActionRateLimit,
		Success: false,
		Reason:  auditReasonRateLimited,
		Context: map[string]string{"category": string(category)},
	})
	return NewThrottled(result.RetryAfter)
}

// emitAudit stamps and dispatches an event. Best-effort by construction:
// the dispatcher never blocks the caller when configured to drop.
func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.dispatcher == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.IP = clientIPFromContext(ctx)
	event.UserAgent = userAgentFromContext(ctx)
	e.dispatcher.Emit(ctx, event)
}

func (e *Engine) logError(msg string, err error, attrs ...slog.Attr) {
	if e.logger == nil {
		return
	}
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.Any("error", err))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	e.logger.Error(msg, args...)
}

// issueSecretToken generates a fresh secret for the purpose, stores both
// derived forms with expiry (overwriting any prior active token), and hands
// the plaintext to the email transport embedded in a link. The plaintext is
// never persisted; a send failure is logged, not returned, so issuance
// already happened.
func (e *Engine) issueSecretToken(ctx context.Context, account *Account, purpose TokenPurpose) error {
	secret, err := token.GenerateSecret()
	if err != nil {
		return err
	}

	slowHash, err := e.codec.SlowHash(secret)
	if err != nil {
		return err
	}
	digest := token.FastDigest(secret)

	ttl := e.config.Tokens.ResetTTL
	if purpose == PurposeEmailVerification {
		ttl = e.config.Tokens.VerificationTTL
	}

	if err := e.repo.SetToken(ctx, account.ID, purpose, slowHash, digest, time.Now().Add(ttl)); err != nil {
		return err
	}

	e.sendTokenMail(ctx, purpose, account.Email, secret)
	return nil
}

func (e *Engine) sendTokenMail(ctx context.Context, purpose TokenPurpose, to, secret string) {
	link := e.buildLink(purpose, secret)
	if e.sender == nil {
		e.logger.Debug("no email sender configured, dropping token mail",
			slog.String("purpose", string(purpose)))
		return
	}
	if err := e.sender.Send(ctx, purpose, to, link); err != nil {
		e.logError("token mail send failed", err, slog.String("purpose", string(purpose)))
	}
}

func (e *Engine) buildLink(purpose TokenPurpose, secret string) string {
	path := e.config.Email.ResetPath
	if purpose == PurposeEmailVerification {
		path = e.config.Email.VerifyPath
	}
	param := e.config.Email.TokenParam
	if param == "" {
		param = "token"
	}
	return e.config.Email.LinkBaseURL + path + "?" + param + "=" + url.QueryEscape(secret)
}

/*
====================================
PERIODIC SWEEPS
====================================
*/

func (e *Engine) startSweeps() {
	e.wg.Add(2)
	go e.tokenSweepLoop()
	go e.rateLimitSweepLoop()
}

// tokenSweepLoop nulls reset token fields once they are past the retention
// cutoff. Redemption already filters on expiry; this is data minimization,
// not correctness.
func (e *Engine) tokenSweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Sweep.TokenInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweepExpiredTokens()
		case <-e.done:
			return
		}
	}
}

func (e *Engine) sweepExpiredTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-e.config.Tokens.ResetRetention)
	cleared, err := e.repo.ClearExpiredResetTokens(ctx, cutoff)
	if err != nil {
		e.logError("expired token sweep failed", err)
		return
	}
	if cleared > 0 {
		e.metrics.add(MetricTokenSweepCleared, uint64(cleared))
	}
}

func (e *Engine) rateLimitSweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Sweep.RateLimitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := e.limiter.Sweep(ctx); err != nil {
				e.logError("rate limit sweep failed", err)
			}
			cancel()
		case <-e.done:
			return
		}
	}
}
