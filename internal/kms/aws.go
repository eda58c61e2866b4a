package kms

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// AWSKMS encrypts under an AWS KMS key. The AAD map is passed as the KMS
// encryption context, which AWS verifies on decrypt.
type AWSKMS struct {
	client *awskms.Client
}

// NewAWSKMS builds a client from the default credential chain, or from static
// keys when both are supplied.
func NewAWSKMS(ctx context.Context, region, accessKeyID, secretAccessKey string) (*AWSKMS, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AWSKMS{client: awskms.NewFromConfig(cfg)}, nil
}

// NewAWSKMSFromClient wraps an existing KMS client.
func NewAWSKMSFromClient(client *awskms.Client) *AWSKMS {
	return &AWSKMS{client: client}
}

func (k *AWSKMS) Encrypt(ctx context.Context, keyRef string, plaintext []byte, aad map[string]string) ([]byte, error) {
	out, err := k.client.Encrypt(ctx, &awskms.EncryptInput{
		KeyId:             aws.String(keyRef),
		Plaintext:         plaintext,
		EncryptionContext: aad,
	})
	if err != nil {
		var nf *types.NotFoundException
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("aws kms key %s: %w", keyRef, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("aws kms encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (k *AWSKMS) Decrypt(ctx context.Context, keyRef string, ciphertext []byte, aad map[string]string) ([]byte, error) {
	out, err := k.client.Decrypt(ctx, &awskms.DecryptInput{
		KeyId:             aws.String(keyRef),
		CiphertextBlob:    ciphertext,
		EncryptionContext: aad,
	})
	if err != nil {
		var nf *types.NotFoundException
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("aws kms key %s: %w", keyRef, ErrKeyNotFound)
		}
		var (
			invalid  *types.InvalidCiphertextException
			wrongKey *types.IncorrectKeyException
			disabled *types.DisabledException
			state    *types.KMSInvalidStateException
		)
		if errors.As(err, &invalid) || errors.As(err, &wrongKey) ||
			errors.As(err, &disabled) || errors.As(err, &state) {
			return nil, fmt.Errorf("aws kms decrypt: %v: %w", err, ErrDecryptionFailed)
		}
		return nil, fmt.Errorf("aws kms decrypt: %w", err)
	}
	return out.Plaintext, nil
}
