// Package s3 provides an S3-compatible content-addressed store. Works
// against AWS S3 and MinIO-style endpoints.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/medchain/provenance/pkg/provenance"
	"github.com/medchain/provenance/pkg/provenance/contentid"
)

// Config options for the S3 store
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (MinIO)
	KeyPrefix       string // Optional key prefix inside the bucket

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm
}

// Store is an S3-compatible implementation of the provenance.ContentStore interface
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	config Config
}

// New creates a new S3-compatible content store
func New(config Config) (*Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg, s3Options...),
		bucket: config.Bucket,
		prefix: config.KeyPrefix,
		config: config,
	}, nil
}

func (s *Store) key(id provenance.ContentID) string {
	return path.Join(s.prefix, string(id))
}

// Put stores the blob under its content-derived id. Re-putting the same
// bytes overwrites the object with identical content, so the call is
// idempotent.
func (s *Store) Put(ctx context.Context, r io.Reader) (provenance.ContentID, error) {
	id, data, err := contentid.FromReader(r)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
		Body:   bytes.NewReader(data),
	}

	if s.config.EnableSSE {
		switch s.config.SSEAlgorithm {
		case "aws:kms":
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if s.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(s.config.SSEKMSKeyID)
			}
		default:
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return id, nil
}

// Get returns the blob for the given id
func (s *Store) Get(ctx context.Context, id provenance.ContentID) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, provenance.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result.Body, nil
}
