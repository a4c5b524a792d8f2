package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordPolicyConfig tunes the password policy.
type PasswordPolicyConfig struct {
	MinLength           int
	MinCharacterClasses int
	// MinStrength is the minimum zxcvbn score (0-4).
	MinStrength int
}

// DefaultPasswordPolicyConfig returns the service defaults.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:           10,
		MinCharacterClasses: 3,
		MinStrength:         3,
	}
}

// PasswordPolicy checks length, character classes and zxcvbn strength. The user's own
// attributes are fed to zxcvbn so passwords resembling them score low.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

// NewPasswordPolicy builds a policy from cfg.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	if cfg.MinStrength > 4 {
		cfg.MinStrength = 4
	}
	return &PasswordPolicy{cfg: cfg}
}

// Validate returns the first violated rule as a *PasswordValidationError.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}

	if len([]rune(password)) < p.cfg.MinLength {
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", p.cfg.MinLength),
		}
	}

	if characterClasses(password) < p.cfg.MinCharacterClasses {
		return &PasswordValidationError{
			Code:    "character_classes",
			Message: fmt.Sprintf("password must include at least %d character types", p.cfg.MinCharacterClasses),
		}
	}

	if p.cfg.MinStrength > 0 {
		result := zxcvbn.PasswordStrength(password, contextInputs(ctx))
		if result.Score < p.cfg.MinStrength {
			return &PasswordValidationError{
				Code:    "weak_password",
				Message: "password is too weak; choose a more complex value",
			}
		}
	}

	return nil
}

func characterClasses(password string) int {
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			symbol = true
		}
	}

	count := 0
	for _, present := range []bool{upper, lower, digit, symbol} {
		if present {
			count++
		}
	}
	return count
}

func contextInputs(ctx domain.PasswordContext) []string {
	inputs := make([]string, 0, 4)
	if v := strings.TrimSpace(ctx.Username); v != "" {
		inputs = append(inputs, v)
	}
	if v := strings.TrimSpace(ctx.Email); v != "" {
		inputs = append(inputs, v)
		if local, _, ok := strings.Cut(v, "@"); ok && local != "" {
			inputs = append(inputs, local)
		}
	}
	if ctx.Phone != nil && strings.TrimSpace(*ctx.Phone) != "" {
		inputs = append(inputs, strings.TrimSpace(*ctx.Phone))
	}
	return inputs
}
