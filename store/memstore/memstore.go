// Package memstore is an in-memory AccountRepository for tests, examples,
// and single-process tools. It mirrors the semantics of the PostgreSQL
// store, including atomic single-use token redemption, but keeps everything
// under one mutex.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mintlane/authcore"
)

// Store holds accounts in maps keyed by id, email, and token digest. The
// digest indexes give the same O(1) token lookup the SQL store gets from
// its partial indexes.
type Store struct {
	mu             sync.Mutex
	byID           map[string]*authcore.Account
	byEmail        map[string]string
	byResetDigest  map[string]string
	byVerifyDigest map[string]string
}

func New() *Store {
	return &Store{
		byID:           make(map[string]*authcore.Account),
		byEmail:        make(map[string]string),
		byResetDigest:  make(map[string]string),
		byVerifyDigest: make(map[string]string),
	}
}

// Create inserts the account, enforcing email uniqueness the way the SQL
// unique index does.
func (s *Store) Create(_ context.Context, account *authcore.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, exists := s.byEmail[email]; exists {
		return authcore.ErrDuplicateEmail
	}

	cp := *account
	s.byID[cp.ID] = &cp
	s.byEmail[email] = cp.ID
	return nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	return s.copyOf(id)
}

func (s *Store) FindByID(_ context.Context, id string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyOf(id)
}

// FindByTokenDigest resolves an unexpired token by its fast digest. Expired
// rows are filtered here, matching the SQL store's WHERE clause; callers
// still re-verify expiry after the slow hash check.
func (s *Store) FindByTokenDigest(_ context.Context, purpose authcore.TokenPurpose, digest string, now time.Time) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.byResetDigest
	if purpose == authcore.PurposeEmailVerification {
		index = s.byVerifyDigest
	}

	id, ok := index[digest]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}

	account := s.byID[id]
	expiresAt := account.ResetTokenExpiresAt
	if purpose == authcore.PurposeEmailVerification {
		expiresAt = account.VerifyTokenExpiresAt
	}
	if !expiresAt.After(now) {
		return nil, authcore.ErrAccountNotFound
	}

	return s.copyOf(id)
}

// SetToken stores both derived forms of a fresh token, replacing any prior
// token of the same purpose.
func (s *Store) SetToken(_ context.Context, id string, purpose authcore.TokenPurpose, slowHash, digest string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}

	switch purpose {
	case authcore.PurposeEmailVerification:
		delete(s.byVerifyDigest, account.VerifyTokenDigest)
		account.VerifyTokenHash = slowHash
		account.VerifyTokenDigest = digest
		account.VerifyTokenExpiresAt = expiresAt
		s.byVerifyDigest[digest] = id
	default:
		delete(s.byResetDigest, account.ResetTokenDigest)
		account.ResetTokenHash = slowHash
		account.ResetTokenDigest = digest
		account.ResetTokenExpiresAt = expiresAt
		s.byResetDigest[digest] = id
	}
	return nil
}

// RedeemResetToken swaps the password hash and clears the reset token in one
// step. The digest comparison under the lock is the compare half of the
// compare-and-update: a concurrent redeem or a superseding SetToken changes
// the stored digest, and the loser gets ErrTokenConsumed.
func (s *Store) RedeemResetToken(_ context.Context, id, digest, newPasswordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	if digest == "" || account.ResetTokenDigest != digest {
		return authcore.ErrTokenConsumed
	}

	account.PasswordHash = newPasswordHash
	delete(s.byResetDigest, digest)
	account.ResetTokenHash = ""
	account.ResetTokenDigest = ""
	account.ResetTokenExpiresAt = time.Time{}
	return nil
}

// RedeemVerifyToken marks the account verified and clears the verification
// token, with the same compare-and-update guarantee as RedeemResetToken.
func (s *Store) RedeemVerifyToken(_ context.Context, id, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	if digest == "" || account.VerifyTokenDigest != digest {
		return authcore.ErrTokenConsumed
	}

	account.Verified = true
	delete(s.byVerifyDigest, digest)
	account.VerifyTokenHash = ""
	account.VerifyTokenDigest = ""
	account.VerifyTokenExpiresAt = time.Time{}
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	account.PasswordHash = hash
	return nil
}

// ClearExpiredResetTokens drops reset tokens whose expiry is at or before
// cutoff and reports how many were cleared.
func (s *Store) ClearExpiredResetTokens(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared int64
	for _, account := range s.byID {
		if account.ResetTokenDigest == "" || account.ResetTokenExpiresAt.After(cutoff) {
			continue
		}
		delete(s.byResetDigest, account.ResetTokenDigest)
		account.ResetTokenHash = ""
		account.ResetTokenDigest = ""
		account.ResetTokenExpiresAt = time.Time{}
		cleared++
	}
	return cleared, nil
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// copyOf returns a snapshot so callers never alias internal state. Callers
// must hold s.mu.
func (s *Store) copyOf(id string) (*authcore.Account, error) {
	account, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

var _ authcore.AccountRepository = (*Store)(nil)
