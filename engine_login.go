package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mintlane/authcore/internal/rate"
)

// Login validates an email/password pair and, on success, issues a signed
// session token. rememberMe selects the extended session lifetime.
//
// All three failure modes (unknown email, account without a password, and
// wrong password) return the same [ErrInvalidCredentials] value, so the
// response carries no user-enumeration signal. A throttled caller gets
// [ErrThrottled] with retry-after instead.
func (e *Engine) Login(ctx context.Context, email, passwordPlain string, rememberMe bool) (*Session, error) {
	normalized := NormalizeEmail(email)

	if err := e.checkLimit(ctx, rate.CategoryLogin, rate.ActorKey(clientIPFromContext(ctx), normalized), MetricLoginThrottled); err != nil {
		return nil, err
	}

	account, err := e.repo.FindByEmail(ctx, normalized)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		e.logError("login account lookup failed", err)
		return nil, newInternalError(err)
	}

	if account == nil || !account.HasPassword() {
		// Burn comparable time so a missing account is not distinguishable
		// from a wrong password by latency.
		_, _ = e.hasher.Verify(passwordPlain, e.timingPadHash())
		return nil, e.failLogin(ctx, normalized, "")
	}

	ok, err := e.hasher.Verify(passwordPlain, account.PasswordHash)
	if err != nil {
		e.logError("stored password hash unreadable", err, slog.String("account_id", account.ID))
		return nil, e.failLogin(ctx, normalized, account.ID)
	}
	if !ok {
		return nil, e.failLogin(ctx, normalized, account.ID)
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, account, passwordPlain)
	}

	subject := SubjectClaims{SubjectID: account.ID, Role: account.Role}
	session, err := e.IssueSession(ctx, subject, rememberMe)
	if err != nil {
		e.logError("session issuance failed", err, slog.String("account_id", account.ID))
		return nil, newInternalError(err)
	}

	e.metrics.inc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		Action:  auditActionLogin,
		ActorID: account.ID,
		Success: true,
		Context: map[string]string{"email": normalized},
	})

	return session, nil
}

func (e *Engine) failLogin(ctx context.Context, email, actorID string) error {
	e.metrics.inc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEvent{
		Action:  auditActionLogin,
		ActorID: actorID,
		Success: false,
		Reason:  auditReasonInvalidCredentials,
		Context: map[string]string{"email": email},
	})
	return ErrInvalidCredentials
}

// maybeUpgradeHash rehashes with current parameters after a successful
// verification against a weaker stored hash. Failure is log-only; the login
// already succeeded.
func (e *Engine) maybeUpgradeHash(ctx context.Context, account *Account, passwordPlain string) {
	upgrade, err := e.hasher.NeedsUpgrade(account.PasswordHash)
	if err != nil || !upgrade {
		return
	}

	newHash, err := e.hasher.Hash(passwordPlain)
	if err != nil {
		e.logError("password rehash failed", err, slog.String("account_id", account.ID))
		return
	}
	if err := e.repo.UpdatePasswordHash(ctx, account.ID, newHash); err != nil {
		e.logError("password rehash store failed", err, slog.String("account_id", account.ID))
	}
}

// timingPadHash returns a hash to verify against when no real hash exists.
// Computed lazily once; cost mirrors a genuine verification.
func (e *Engine) timingPadHash() string {
	e.timingPadOnce.Do(func() {
		pad, err := e.hasher.Hash("authcore timing pad " + time.Now().String())
		if err != nil {
			return
		}
		e.timingPad = pad
	})
	return e.timingPad
}
