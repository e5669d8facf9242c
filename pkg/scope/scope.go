// Package scope binds authenticated principals to their storage prefix
// and enforces that binding on every key they touch.
package scope

import (
	"errors"
	"fmt"
	"strings"

	"github.com/s3gate/s3gate/pkg/audit"
)

var (
	ErrInvalidPrincipal = errors.New("invalid principal")
	ErrAccessDenied     = errors.New("access denied")
)

// PrefixRoot is the namespace root all tenant prefixes live under.
const PrefixRoot = "users/"

// maxPrincipalLen bounds principal identifiers; Cognito subs and
// similar identity-provider ids are well below this.
const maxPrincipalLen = 128

// DerivePrefix returns the canonical storage prefix for a principal.
// Pure and deterministic: the prefix is never stored, only recomputed.
// Two distinct principals can never derive the same prefix because the
// principal is embedded verbatim and may not contain a separator.
func DerivePrefix(principal string) (string, error) {
	if err := validatePrincipal(principal); err != nil {
		return "", err
	}
	return PrefixRoot + principal + "/", nil
}

func validatePrincipal(principal string) error {
	if principal == "" || len(principal) > maxPrincipalLen {
		return ErrInvalidPrincipal
	}
	if strings.ContainsAny(principal, `/\`) {
		return ErrInvalidPrincipal
	}
	for _, r := range principal {
		// No whitespace, control characters or non-ASCII.
		if r <= 0x20 || r >= 0x7f {
			return ErrInvalidPrincipal
		}
	}
	return nil
}

// Gate is the authorization chokepoint. Every component that touches
// storage calls Authorize first and propagates ErrAccessDenied verbatim.
type Gate struct {
	audit *audit.Logger
}

// NewGate creates a gate that records denied attempts on the given
// audit logger.
func NewGate(auditLog *audit.Logger) *Gate {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	return &Gate{audit: auditLog}
}

// Authorize checks that target falls under the principal's derived
// prefix. The comparison is byte-wise and includes the trailing
// separator, so the prefix users/abc/ never matches users/abc2/file.
func (g *Gate) Authorize(principal, target string) error {
	prefix, err := DerivePrefix(principal)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(target, prefix) {
		g.audit.Denied(principal, target, prefix)
		return fmt.Errorf("key %q: %w", target, ErrAccessDenied)
	}
	return nil
}
