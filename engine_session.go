package authcore

import (
	"context"
	"time"
)

// IssueSession signs a bearer token for the subject. extended selects the
// long "remember me" lifetime.
func (e *Engine) IssueSession(_ context.Context, subject SubjectClaims, extended bool) (*Session, error) {
	tokenStr, err := e.sessions.Issue(subject.SubjectID, string(subject.Role), extended)
	if err != nil {
		return nil, newInternalError(err)
	}

	ttl := e.config.Session.DefaultTTL
	if extended {
		ttl = e.config.Session.ExtendedTTL
	}

	e.metrics.inc(MetricSessionIssued)
	return &Session{
		Token:     tokenStr,
		Subject:   subject,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// ValidateSession verifies signature and expiry of a bearer token and
// returns its claims. This is the hot path: no storage round-trip, and any
// failure (bad signature, malformed, expired) collapses to the one
// generic [ErrInvalidSession].
func (e *Engine) ValidateSession(_ context.Context, tokenStr string) (SubjectClaims, error) {
	claims, err := e.sessions.Verify(tokenStr)
	if err != nil {
		e.metrics.inc(MetricSessionRejected)
		return SubjectClaims{}, ErrInvalidSession
	}

	return SubjectClaims{
		SubjectID: claims.Subject,
		Role:      Role(claims.Role),
	}, nil
}
