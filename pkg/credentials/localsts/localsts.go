// Package localsts is a development stand-in for the temporary
// credential capability. It mints random access key pairs and signs
// the session token as an HS256 JWT carrying the scoped policy, so
// the token is self-describing and verifiable with the gateway secret.
package localsts

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/s3gate/s3gate/pkg/credentials"
)

// Issuer signs local session tokens with a shared secret.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an issuer with the given signing secret.
func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret}
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssueSessionToken mints a credential triple expiring after duration.
func (i *Issuer) IssueSessionToken(ctx context.Context, name, policyDocument string, duration time.Duration) (*credentials.SessionCredential, error) {
	accessKeyID, err := randomToken(15)
	if err != nil {
		return nil, err
	}
	secretKey, err := randomToken(30)
	if err != nil {
		return nil, err
	}
	expiration := time.Now().UTC().Add(duration)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    name,
		"policy": policyDocument,
		"exp":    expiration.Unix(),
		"iat":    time.Now().UTC().Unix(),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, err
	}

	return &credentials.SessionCredential{
		AccessKeyID:     "LSK" + accessKeyID,
		SecretAccessKey: secretKey,
		SessionToken:    signed,
		Expiration:      expiration,
	}, nil
}
