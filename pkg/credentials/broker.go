package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s3gate/s3gate/pkg/audit"
	"github.com/s3gate/s3gate/pkg/scope"
)

// Broker issues short-lived, prefix-scoped session credentials. It
// keeps no state: repeated calls mint independent credentials with
// overlapping lifetimes.
type Broker struct {
	issuer Issuer
	bucket string
	audit  *audit.Logger
}

// NewBroker creates a broker over the given issuer and bucket.
func NewBroker(issuer Issuer, bucket string, auditLog *audit.Logger) *Broker {
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	return &Broker{
		issuer: issuer,
		bucket: bucket,
		audit:  auditLog,
	}
}

// sessionName returns the federation name passed to the issuer,
// truncated to the issuer's 32-character limit.
func sessionName(principal string) string {
	name := "user-" + principal
	if len(name) > 32 {
		name = name[:32]
	}
	return name
}

// IssueSessionCredentials mints a session credential confined to the
// principal's prefix. The policy document is generated fresh per call.
// Issuance failures are not retried here; retry policy belongs to the
// caller.
func (b *Broker) IssueSessionCredentials(ctx context.Context, principal string, durationSeconds int) (*SessionCredential, error) {
	prefix, err := scope.DerivePrefix(principal)
	if err != nil {
		return nil, err
	}
	if durationSeconds < MinDurationSeconds || durationSeconds > MaxDurationSeconds {
		return nil, fmt.Errorf("duration %ds out of range [%d, %d]: %w",
			durationSeconds, MinDurationSeconds, MaxDurationSeconds, ErrInvalidDuration)
	}

	policy, err := ScopedPolicy(b.bucket, prefix)
	if err != nil {
		return nil, err
	}

	cred, err := b.issuer.IssueSessionToken(ctx, sessionName(principal), policy, time.Duration(durationSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssuanceFailed, err)
	}

	b.audit.Event(principal, "issue_session_credentials", "sts", logrus.Fields{
		"duration":   durationSeconds,
		"expiration": cred.Expiration,
	})
	return cred, nil
}
