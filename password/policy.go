package password

import (
	"strings"
	"unicode"
)

// Symbols is the fixed punctuation set accepted by the policy. Anything
// outside it does not count toward the symbol requirement.
const Symbols = "!@#$%^&*()-_=+[]{}|;:'\",.<>/?`~\\"

// MinLength is the minimum accepted password length in runes.
const MinLength = 8

// PolicyViolation names a single failed policy rule.
type PolicyViolation string

const (
	ViolationTooShort  PolicyViolation = "must be at least 8 characters long"
	ViolationUppercase PolicyViolation = "must contain at least one uppercase letter"
	ViolationLowercase PolicyViolation = "must contain at least one lowercase letter"
	ViolationDigit     PolicyViolation = "must contain at least one number"
	ViolationSymbol    PolicyViolation = "must contain at least one special character"
)

// PolicyError reports every rule the candidate password failed. It is
// returned before any hashing or storage work happens.
type PolicyError struct {
	Violations []PolicyViolation
}

func (e *PolicyError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, string(v))
	}
	return "password " + strings.Join(parts, "; ")
}

// CheckPolicy validates the acceptance policy: length >= 8 and at least one
// uppercase letter, one lowercase letter, one digit, and one symbol from
// [Symbols]. Returns nil when the password is acceptable.
func CheckPolicy(candidate string) error {
	var (
		violations []PolicyViolation

		hasUpper, hasLower, hasDigit, hasSymbol bool
	)

	runes := []rune(candidate)
	if len(runes) < MinLength {
		violations = append(violations, ViolationTooShort)
	}

	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(Symbols, r):
			hasSymbol = true
		}
	}

	if !hasUpper {
		violations = append(violations, ViolationUppercase)
	}
	if !hasLower {
		violations = append(violations, ViolationLowercase)
	}
	if !hasDigit {
		violations = append(violations, ViolationDigit)
	}
	if !hasSymbol {
		violations = append(violations, ViolationSymbol)
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}

	return nil
}
