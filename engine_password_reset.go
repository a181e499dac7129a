package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mintlane/authcore/internal/rate"
	"github.com/mintlane/authcore/password"
	"github.com/mintlane/authcore/token"
)

// RequestPasswordReset issues a password-reset token for the account behind
// email and mails the reset link.
//
// Anti-enumeration: the outcome is success-shaped whether or not the
// account exists, and internal failures are swallowed after server-side
// logging. Only the rate-limit check may produce a visible non-success
// outcome on this path.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	normalized := NormalizeEmail(email)

	if err := e.checkLimit(ctx, rate.CategoryResetRequest, rate.ActorKey(clientIPFromContext(ctx), normalized), metricCount); err != nil {
		return err
	}

	account, err := e.repo.FindByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			e.logError("reset request lookup failed", err)
		}
		// Unknown email: same success shape, and no audit record tied to a
		// real account.
		return nil
	}

	if err := e.issueSecretToken(ctx, account, PurposePasswordReset); err != nil {
		e.logError("reset token issuance failed", err, slog.String("account_id", account.ID))
		return nil
	}

	e.metrics.inc(MetricPasswordResetRequest)
	e.emitAudit(ctx, AuditEvent{
		Action:  auditActionPasswordResetReq,
		ActorID: account.ID,
		Success: true,
		Context: map[string]string{"email": normalized},
	})

	return nil
}

// RedeemPasswordReset exchanges a valid reset secret for a new password.
// The token is single-use: setting the new hash and clearing the token
// fields is one atomic compare-and-update, so replay is impossible even if
// the secret leaks afterward.
//
// Every token-shaped failure returns the same [ErrInvalidToken]; the audit
// trail distinguishes INVALID_TOKEN, TOKEN_MISMATCH, and EXPIRED_TOKEN.
func (e *Engine) RedeemPasswordReset(ctx context.Context, secret, newPassword string) error {
	// Keyed by network origin only, deliberately distinct from the
	// request-side limiter, which also keys on the submitted email.
	if err := e.checkLimit(ctx, rate.CategoryResetRedeem, rate.ActorKey(clientIPFromContext(ctx), ""), metricCount); err != nil {
		return err
	}

	if err := password.CheckPolicy(newPassword); err != nil {
		e.metrics.inc(MetricPasswordResetRedeemFailure)
		e.emitAudit(ctx, AuditEvent{
			Action:  auditActionPasswordResetUse,
			Success: false,
			Reason:  auditReasonPolicyViolation,
		})
		return NewValidationError(err.Error())
	}

	account, err := e.lookupTokenAccount(ctx, auditActionPasswordResetUse, MetricPasswordResetRedeemFailure, PurposePasswordReset, secret)
	if err != nil {
		return err
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.logError("reset redemption hash failed", err, slog.String("account_id", account.ID))
		return newInternalError(err)
	}

	if err := e.repo.RedeemResetToken(ctx, account.ID, account.ResetTokenDigest, newHash); err != nil {
		if errors.Is(err, ErrTokenConsumed) {
			return e.failRedeem(ctx, auditActionPasswordResetUse, MetricPasswordResetRedeemFailure, auditReasonInvalidToken, account.ID)
		}
		e.logError("reset redemption store failed", err, slog.String("account_id", account.ID))
		return newInternalError(err)
	}

	e.metrics.inc(MetricPasswordResetRedeemSuccess)
	e.emitAudit(ctx, AuditEvent{
		Action:  auditActionPasswordResetUse,
		ActorID: account.ID,
		Success: true,
	})

	return nil
}

// lookupTokenAccount is the shared redemption entry for both purposes: the
// O(1) fast-digest lookup narrows to one candidate, the slow hash proves
// possession, and expiry is re-checked defensively beyond the query filter.
func (e *Engine) lookupTokenAccount(ctx context.Context, action string, failMetric MetricID, purpose TokenPurpose, secret string) (*Account, error) {
	digest := token.FastDigest(secret)

	account, err := e.repo.FindByTokenDigest(ctx, purpose, digest, time.Now())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.failRedeem(ctx, action, failMetric, auditReasonInvalidToken, "")
		}
		e.logError("token digest lookup failed", err)
		return nil, newInternalError(err)
	}

	slowHash, expiresAt := account.ResetTokenHash, account.ResetTokenExpiresAt
	if purpose == PurposeEmailVerification {
		slowHash, expiresAt = account.VerifyTokenHash, account.VerifyTokenExpiresAt
	}

	// The digest narrowed the candidate set; only the slow hash authorizes.
	ok, err := e.codec.Verify(secret, slowHash)
	if err != nil || !ok {
		return nil, e.failRedeem(ctx, action, failMetric, auditReasonTokenMismatch, account.ID)
	}

	if time.Now().After(expiresAt) {
		return nil, e.failRedeem(ctx, action, failMetric, auditReasonExpiredToken, account.ID)
	}

	return account, nil
}

func (e *Engine) failRedeem(ctx context.Context, action string, failMetric MetricID, reason, actorID string) error {
	e.metrics.inc(failMetric)
	e.emitAudit(ctx, AuditEvent{
		Action:  action,
		ActorID: actorID,
		Success: false,
		Reason:  reason,
	})
	return ErrInvalidToken
}
