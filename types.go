package authcore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role is the closed set of account roles in the marketplace.
type Role string

const (
	// RoleCustomer is the default role assigned at registration.
	RoleCustomer Role = "customer"
	// RoleProvider is a supply-side account (quotes, consultations).
	RoleProvider Role = "provider"
	// RoleAdmin is an operator account.
	RoleAdmin Role = "admin"
)

// ValidRole reports whether r is a member of the closed role set.
func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// TokenPurpose distinguishes the two single-use secret token flows. The
// flows are structurally identical; purpose selects the expiry window, the
// rate-limit category, and the redemption effect.
type TokenPurpose string

const (
	// PurposePasswordReset tokens expire after one hour and set a new
	// password hash on redemption.
	PurposePasswordReset TokenPurpose = "password_reset"
	// PurposeEmailVerification tokens expire after 24 hours and mark the
	// account verified on redemption.
	PurposeEmailVerification TokenPurpose = "email_verification"
)

// Account is the identity record owned by the persistent store. The token
// fields hold only the two derived forms of a secret; plaintext never
// reaches storage. At most one active token per purpose exists at a time:
// issuing a new one overwrites the prior one.
type Account struct {
	ID           string
	Email        string // lowercase-normalized, unique
	PasswordHash string // empty when no password is set
	Role         Role
	Verified     bool
	CreatedAt    time.Time

	ResetTokenHash      string
	ResetTokenDigest    string
	ResetTokenExpiresAt time.Time // zero when no active token

	VerifyTokenHash      string
	VerifyTokenDigest    string
	VerifyTokenExpiresAt time.Time
}

// HasPassword reports whether a password hash is set.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// NormalizeEmail applies the canonical email normalization: trim and
// lowercase. Every repository lookup and uniqueness check uses this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository lookup/compare-and-update errors. Adapters translate their
// storage errors into these.
var (
	// ErrAccountNotFound is returned by lookups that miss.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by Create on a normalized-email collision.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrTokenConsumed is returned by the redeem operations when the token
	// fields were already cleared by a concurrent redemption.
	ErrTokenConsumed = errors.New("token already consumed")
)

// AccountRepository is the storage boundary. Implementations must provide
// per-row atomic compare-and-update for the two redeem operations: the
// purpose-specific effect and the clearing of the token fields are one
// transaction, and a redeem against already-cleared fields returns
// [ErrTokenConsumed].
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	FindByEmail(ctx context.Context, normalizedEmail string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)

	// FindByTokenDigest locates the account holding a non-expired token of
	// the given purpose by its fast digest. This is the O(1) redemption path
	// for both purposes.
	FindByTokenDigest(ctx context.Context, purpose TokenPurpose, digest string, now time.Time) (*Account, error)

	// SetToken stores both derived forms and the expiry, overwriting any
	// prior token of the same purpose.
	SetToken(ctx context.Context, id string, purpose TokenPurpose, slowHash, digest string, expiresAt time.Time) error

	// RedeemResetToken atomically sets the new password hash and clears the
	// reset token fields, conditional on the stored digest still matching.
	RedeemResetToken(ctx context.Context, id, digest, newPasswordHash string) error

	// RedeemVerifyToken atomically sets verified=true and clears the
	// verification token fields, conditional on the stored digest still
	// matching.
	RedeemVerifyToken(ctx context.Context, id, digest string) error

	// UpdatePasswordHash replaces the password hash. Used for opportunistic
	// parameter upgrades on login.
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// ClearExpiredResetTokens nulls reset token fields whose expiry is older
	// than cutoff and reports how many rows changed.
	ClearExpiredResetTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// EmailSender is the outbound email boundary. Fire-and-forget from the
// engine's perspective: the token is stored before Send is called, and a
// send failure is logged, never surfaced or retried synchronously.
type EmailSender interface {
	Send(ctx context.Context, purpose TokenPurpose, to, link string) error
}

// SubjectClaims identifies an authenticated subject.
type SubjectClaims struct {
	SubjectID string
	Role      Role
}

// Session is the result of a successful login: a signed bearer token plus
// the claims it carries.
type Session struct {
	Token     string
	Subject   SubjectClaims
	ExpiresAt time.Time
}
