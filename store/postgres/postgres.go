// Package postgres implements the account repository on PostgreSQL via
// pgx. Single-use token redemption relies on conditional UPDATEs: the row
// must still carry the expected digest, so two racing redeems cannot both
// succeed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mintlane/authcore"
)

const accountColumns = `id, email, password_hash, role, verified,
	       reset_token_hash, reset_token_digest, reset_token_expires_at,
	       verify_token_hash, verify_token_digest, verify_token_expires_at,
	       created_at`

// Store is a pgxpool-backed AccountRepository.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts the account. A unique violation on the email index maps to
// the repository's duplicate sentinel so callers need no SQL knowledge.
func (s *Store) Create(ctx context.Context, account *authcore.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		account.ID,
		account.Email,
		account.PasswordHash,
		string(account.Role),
		account.Verified,
		account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return authcore.ErrDuplicateEmail
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)
	return s.scanAccount(row, "by email")
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)
	return s.scanAccount(row, "by id")
}

// FindByTokenDigest resolves an unexpired token by its fast digest. The
// partial indexes on the digest columns make this a point lookup regardless
// of table size.
func (s *Store) FindByTokenDigest(ctx context.Context, purpose authcore.TokenPurpose, digest string, now time.Time) (*authcore.Account, error) {
	digestCol, expiresCol := tokenColumns(purpose)
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE `+digestCol+` = $1 AND `+expiresCol+` > $2
	`, digest, now)
	return s.scanAccount(row, "by token digest")
}

// SetToken stores both derived forms of a fresh token, replacing any prior
// token of the same purpose.
func (s *Store) SetToken(ctx context.Context, id string, purpose authcore.TokenPurpose, slowHash, digest string, expiresAt time.Time) error {
	hashCol, digestCol, expiresCol := tokenColumnsWithHash(purpose)
	result, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET `+hashCol+` = $2, `+digestCol+` = $3, `+expiresCol+` = $4
		WHERE id = $1
	`, id, slowHash, digest, expiresAt)
	if err != nil {
		return fmt.Errorf("set %s token: %w", purpose, err)
	}
	if result.RowsAffected() == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

// RedeemResetToken swaps the password hash and clears the reset token in
// one statement. The digest predicate is the compare half of the
// compare-and-update: if the token was already consumed or superseded, no
// row matches and the caller gets ErrTokenConsumed.
func (s *Store) RedeemResetToken(ctx context.Context, id, digest, newPasswordHash string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $3,
		    reset_token_hash = NULL,
		    reset_token_digest = NULL,
		    reset_token_expires_at = NULL
		WHERE id = $1 AND reset_token_digest = $2
	`, id, digest, newPasswordHash)
	if err != nil {
		return fmt.Errorf("redeem reset token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authcore.ErrTokenConsumed
	}
	return nil
}

// RedeemVerifyToken marks the account verified and clears the verification
// token with the same conditional-update guarantee as RedeemResetToken.
func (s *Store) RedeemVerifyToken(ctx context.Context, id, digest string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET verified = TRUE,
		    verify_token_hash = NULL,
		    verify_token_digest = NULL,
		    verify_token_expires_at = NULL
		WHERE id = $1 AND verify_token_digest = $2
	`, id, digest)
	if err != nil {
		return fmt.Errorf("redeem verify token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authcore.ErrTokenConsumed
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2 WHERE id = $1
	`, id, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

// ClearExpiredResetTokens nulls out reset tokens whose expiry is at or
// before cutoff and reports how many rows were touched.
func (s *Store) ClearExpiredResetTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET reset_token_hash = NULL,
		    reset_token_digest = NULL,
		    reset_token_expires_at = NULL
		WHERE reset_token_digest IS NOT NULL AND reset_token_expires_at <= $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear expired reset tokens: %w", err)
	}
	return result.RowsAffected(), nil
}

func tokenColumns(purpose authcore.TokenPurpose) (digestCol, expiresCol string) {
	if purpose == authcore.PurposeEmailVerification {
		return "verify_token_digest", "verify_token_expires_at"
	}
	return "reset_token_digest", "reset_token_expires_at"
}

func tokenColumnsWithHash(purpose authcore.TokenPurpose) (hashCol, digestCol, expiresCol string) {
	if purpose == authcore.PurposeEmailVerification {
		return "verify_token_hash", "verify_token_digest", "verify_token_expires_at"
	}
	return "reset_token_hash", "reset_token_digest", "reset_token_expires_at"
}

// scanAccount scans one row, mapping pgx.ErrNoRows to the repository's
// not-found sentinel. Token columns are nullable; NULL scans to the zero
// value the engine expects.
func (s *Store) scanAccount(row pgx.Row, op string) (*authcore.Account, error) {
	var (
		account         authcore.Account
		role            string
		resetHash       *string
		resetDigest     *string
		resetExpiresAt  *time.Time
		verifyHash      *string
		verifyDigest    *string
		verifyExpiresAt *time.Time
	)

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&role,
		&account.Verified,
		&resetHash,
		&resetDigest,
		&resetExpiresAt,
		&verifyHash,
		&verifyDigest,
		&verifyExpiresAt,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account %s: %w", op, err)
	}

	account.Role = authcore.Role(role)
	if resetHash != nil {
		account.ResetTokenHash = *resetHash
	}
	if resetDigest != nil {
		account.ResetTokenDigest = *resetDigest
	}
	if resetExpiresAt != nil {
		account.ResetTokenExpiresAt = *resetExpiresAt
	}
	if verifyHash != nil {
		account.VerifyTokenHash = *verifyHash
	}
	if verifyDigest != nil {
		account.VerifyTokenDigest = *verifyDigest
	}
	if verifyExpiresAt != nil {
		account.VerifyTokenExpiresAt = *verifyExpiresAt
	}

	return &account, nil
}

var _ authcore.AccountRepository = (*Store)(nil)
