package authcore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mintlane/authcore/internal/rate"
)

// VerifyEmail redeems an email-verification secret: marks the account
// verified and clears the token fields in one atomic compare-and-update.
// Redemption uses the same fast-digest lookup + slow-hash verification as
// password reset; there is no scan over accounts.
func (e *Engine) VerifyEmail(ctx context.Context, secret string) error {
	account, err := e.lookupTokenAccount(ctx, auditActionEmailVerify, MetricEmailVerifyFailure, PurposeEmailVerification, secret)
	if err != nil {
		return err
	}

	if account.Verified {
		e.metrics.inc(MetricEmailVerifyFailure)
		e.emitAudit(ctx, AuditEvent{
			Action:  auditActionEmailVerify,
			ActorID: account.ID,
			Success: false,
			Reason:  auditReasonAlreadyVerified,
		})
		return ErrAlreadyVerified
	}

	if err := e.repo.RedeemVerifyToken(ctx, account.ID, account.VerifyTokenDigest); err != nil {
		if errors.Is(err, ErrTokenConsumed) {
			return e.failRedeem(ctx, auditActionEmailVerify, MetricEmailVerifyFailure, auditReasonInvalidToken, account.ID)
		}
		e.logError("verification redemption store failed", err, slog.String("account_id", account.ID))
		return newInternalError(err)
	}

	e.metrics.inc(MetricEmailVerifySuccess)
	e.emitAudit(ctx, AuditEvent{
		Action:  auditActionEmailVerify,
		ActorID: account.ID,
		Success: true,
	})

	return nil
}

// ResendVerification issues a fresh verification token for the
// authenticated subject, superseding any prior one, and mails the link.
//
// Internal failures are swallowed after logging (the caller sees success)
// but the rate limit, a vanished subject, and an already-verified account
// are visible outcomes, since the caller is authenticated and the response
// leaks nothing about other accounts.
func (e *Engine) ResendVerification(ctx context.Context, subjectID string) error {
	if err := e.checkLimit(ctx, rate.CategoryResendVerification, "acct:"+subjectID, metricCount); err != nil {
		return err
	}

	account, err := e.repo.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrSubjectGone
		}
		e.logError("resend verification lookup failed", err, slog.String("account_id", subjectID))
		return nil
	}

	if account.Verified {
		return ErrAlreadyVerified
	}

	if err := e.issueSecretToken(ctx, account, PurposeEmailVerification); err != nil {
		e.logError("resend verification issuance failed", err, slog.String("account_id", subjectID))
		return nil
	}

	e.metrics.inc(MetricResendVerification)
	e.emitAudit(ctx, AuditEvent{
		Action:  auditActionResendVerification,
		ActorID: account.ID,
		Success: true,
	})

	return nil
}
