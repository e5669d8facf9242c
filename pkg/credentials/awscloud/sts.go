// Package awscloud implements the credential capabilities on AWS STS
// and IAM using aws-sdk-go-v2.
package awscloud

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/s3gate/s3gate/pkg/credentials"
)

// STSIssuer issues federation tokens downscoped by an inline policy.
type STSIssuer struct {
	client *sts.Client
}

// NewSTSIssuer creates an issuer over the given STS client.
func NewSTSIssuer(client *sts.Client) *STSIssuer {
	return &STSIssuer{client: client}
}

// IssueSessionToken calls GetFederationToken with the scoped policy.
func (i *STSIssuer) IssueSessionToken(ctx context.Context, name, policyDocument string, duration time.Duration) (*credentials.SessionCredential, error) {
	out, err := i.client.GetFederationToken(ctx, &sts.GetFederationTokenInput{
		Name:            aws.String(name),
		Policy:          aws.String(policyDocument),
		DurationSeconds: aws.Int32(int32(duration / time.Second)),
	})
	if err != nil {
		return nil, err
	}
	cred := &credentials.SessionCredential{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
	}
	if out.Credentials.Expiration != nil {
		cred.Expiration = *out.Credentials.Expiration
	}
	return cred, nil
}
