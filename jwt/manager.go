package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for every verification failure: bad signature,
// malformed token, wrong algorithm, expired. Callers must not surface which
// check failed.
var ErrTokenInvalid = errors.New("invalid or expired token")

const (
	defaultSessionTTL  = 15 * time.Minute
	extendedSessionTTL = 7 * 24 * time.Hour
)

// Config tunes the session token manager. Secret is mandatory; the two TTLs
// default to 15 minutes and 7 days.
type Config struct {
	// Secret is the HS256 signing key. Construction fails without it.
	Secret []byte

	// DefaultTTL bounds a standard session.
	DefaultTTL time.Duration

	// ExtendedTTL bounds a "remember me" session.
	ExtendedTTL time.Duration

	Issuer string

	// Leeway tolerates small clock skew during verification. Capped at
	// two minutes.
	Leeway time.Duration
}

// SessionClaims is the self-contained bearer payload: subject id in the
// registered claims, role alongside. There is no server-side session store;
// signature and expiry are the whole verification.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and verifies signed session tokens. Immutable after
// construction and safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the configuration. A missing signing secret is a
// construction error so the process fails at startup, not on first login.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session signing secret is required")
	}
	if len(cfg.Secret) < 32 {
		return nil, errors.New("session signing secret must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = defaultSessionTTL
	}
	if cfg.ExtendedTTL == 0 {
		cfg.ExtendedTTL = extendedSessionTTL
	}
	if cfg.DefaultTTL < 0 || cfg.ExtendedTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.ExtendedTTL < cfg.DefaultTTL {
		return nil, errors.New("extended TTL must not be shorter than default TTL")
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a token for the subject. Extended selects the long-lived TTL
// for persistent ("remember me") sessions.
func (m *Manager) Issue(subjectID, role string, extended bool) (string, error) {
	if subjectID == "" {
		return "", errors.New("subject id is required")
	}

	ttl := m.config.DefaultTTL
	if extended {
		ttl = m.config.ExtendedTTL
	}

	now := time.Now()
	claims := SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Verify checks signature and expiry. Every failure collapses to
// [ErrTokenInvalid]; no detail distinguishing cause reaches the caller.
func (m *Manager) Verify(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
