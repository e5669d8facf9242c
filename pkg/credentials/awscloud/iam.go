package awscloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/s3gate/s3gate/pkg/credentials"
)

// IAMKeyStore keeps one IAM user per principal with an inline scoped
// policy, and manages that user's access keys. Because every call is
// addressed through the principal's own user name, foreign key ids
// surface as NoSuchEntity and are reported as ErrKeyNotFound.
type IAMKeyStore struct {
	client     *iam.Client
	namePrefix string
}

// NewIAMKeyStore creates a key store over the given IAM client.
// namePrefix distinguishes this gateway's users from other IAM users
// in the account.
func NewIAMKeyStore(client *iam.Client, namePrefix string) *IAMKeyStore {
	if namePrefix == "" {
		namePrefix = "s3gate-user-"
	}
	return &IAMKeyStore{
		client:     client,
		namePrefix: namePrefix,
	}
}

func (s *IAMKeyStore) userName(principal string) string {
	return s.namePrefix + principal
}

// ensureUser creates the principal's IAM user with its inline scoped
// policy if it does not exist yet.
func (s *IAMKeyStore) ensureUser(ctx context.Context, principal, policyDocument string) error {
	user := s.userName(principal)
	_, err := s.client.GetUser(ctx, &iam.GetUserInput{UserName: aws.String(user)})
	if err == nil {
		return nil
	}
	var nse *types.NoSuchEntityException
	if !errors.As(err, &nse) {
		return err
	}
	if _, err := s.client.CreateUser(ctx, &iam.CreateUserInput{UserName: aws.String(user)}); err != nil {
		return err
	}
	_, err = s.client.PutUserPolicy(ctx, &iam.PutUserPolicyInput{
		UserName:       aws.String(user),
		PolicyName:     aws.String("S3Access-" + principal),
		PolicyDocument: aws.String(policyDocument),
	})
	return err
}

// CreateKey creates an access key for the principal's user, creating
// the user first if needed.
func (s *IAMKeyStore) CreateKey(ctx context.Context, principal, policyDocument string) (*credentials.AccessKey, error) {
	if err := s.ensureUser(ctx, principal, policyDocument); err != nil {
		return nil, err
	}
	out, err := s.client.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{
		UserName: aws.String(s.userName(principal)),
	})
	if err != nil {
		return nil, err
	}
	key := &credentials.AccessKey{
		AccessKeyID:     aws.ToString(out.AccessKey.AccessKeyId),
		SecretAccessKey: aws.ToString(out.AccessKey.SecretAccessKey),
		Status:          credentials.KeyStatus(out.AccessKey.Status),
	}
	if out.AccessKey.CreateDate != nil {
		key.CreateDate = *out.AccessKey.CreateDate
	}
	return key, nil
}

// ListKeys returns metadata for the principal's keys. A principal
// without an IAM user simply has no keys yet.
func (s *IAMKeyStore) ListKeys(ctx context.Context, principal string) ([]credentials.AccessKey, error) {
	out, err := s.client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{
		UserName: aws.String(s.userName(principal)),
	})
	if err != nil {
		var nse *types.NoSuchEntityException
		if errors.As(err, &nse) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]credentials.AccessKey, 0, len(out.AccessKeyMetadata))
	for _, md := range out.AccessKeyMetadata {
		key := credentials.AccessKey{
			AccessKeyID: aws.ToString(md.AccessKeyId),
			Status:      credentials.KeyStatus(md.Status),
		}
		if md.CreateDate != nil {
			key.CreateDate = *md.CreateDate
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// SetKeyStatus updates a key's Active/Inactive status.
func (s *IAMKeyStore) SetKeyStatus(ctx context.Context, principal, keyID string, status credentials.KeyStatus) error {
	_, err := s.client.UpdateAccessKey(ctx, &iam.UpdateAccessKeyInput{
		UserName:    aws.String(s.userName(principal)),
		AccessKeyId: aws.String(keyID),
		Status:      types.StatusType(status),
	})
	return mapNoSuchEntity(err, keyID)
}

// DeleteKey removes a key.
func (s *IAMKeyStore) DeleteKey(ctx context.Context, principal, keyID string) error {
	_, err := s.client.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
		UserName:    aws.String(s.userName(principal)),
		AccessKeyId: aws.String(keyID),
	})
	return mapNoSuchEntity(err, keyID)
}

func mapNoSuchEntity(err error, keyID string) error {
	if err == nil {
		return nil
	}
	var nse *types.NoSuchEntityException
	if errors.As(err, &nse) {
		return fmt.Errorf("key %s: %w", keyID, credentials.ErrKeyNotFound)
	}
	return err
}
