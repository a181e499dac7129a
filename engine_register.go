package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mintlane/authcore/internal/rate"
	"github.com/mintlane/authcore/password"
)

// Register creates an account with the default role, unverified, issues an
// email-verification token, and hands the verification link to the email
// transport. The password must pass the acceptance policy before any
// hashing or storage work happens.
func (e *Engine) Register(ctx context.Context, email, passwordPlain string) (*Account, error) {
	normalized := NormalizeEmail(email)

	if err := e.checkLimit(ctx, rate.CategoryRegister, rate.ActorKey(clientIPFromContext(ctx), normalized), MetricRegisterThrottled); err != nil {
		return nil, err
	}

	if err := password.CheckPolicy(passwordPlain); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:  auditActionRegister,
			Success: false,
			Reason:  auditReasonPolicyViolation,
			Context: map[string]string{"email": normalized},
		})
		return nil, NewValidationError(err.Error())
	}

	if normalized == "" {
		return nil, NewValidationError("email is required")
	}

	existing, err := e.repo.FindByEmail(ctx, normalized)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		e.logError("register uniqueness lookup failed", err)
		return nil, newInternalError(err)
	}
	if existing != nil {
		return nil, e.failRegisterDuplicate(ctx, normalized)
	}

	hash, err := e.hasher.Hash(passwordPlain)
	if err != nil {
		e.logError("register password hash failed", err)
		return nil, newInternalError(err)
	}

	account := &Account{
		ID:           uuid.NewString(),
		Email:        normalized,
		PasswordHash: hash,
		Role:         e.config.Account.DefaultRole,
		Verified:     false,
		CreatedAt:    time.Now().UTC(),
	}

	if err := e.repo.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a create race since the lookup above.
			return nil, e.failRegisterDuplicate(ctx, normalized)
		}
		e.logError("register account create failed", err)
		return nil, newInternalError(err)
	}

	// The account exists either way; a verification token failure is
	// recoverable through resend, so it is log-only.
	if err := e.issueSecretToken(ctx, account, PurposeEmailVerification); err != nil {
		e.logError("verification token issuance failed", err)
	}

	e.metrics.inc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditEvent{
		Action:  auditActionRegister,
		ActorID: account.ID,
		Success: true,
		Context: map[string]string{"email": normalized, "role": string(account.Role)},
	})

	return account, nil
}

func (e *Engine) failRegisterDuplicate(ctx context.Context, email string) error {
	e.metrics.inc(MetricRegisterDuplicate)
	e.emitAudit(ctx, AuditEvent{
		Action:  auditActionRegister,
		Success: false,
		Reason:  auditReasonDuplicateEmail,
		Context: map[string]string{"email": email},
	})
	return ErrEmailTaken
}
