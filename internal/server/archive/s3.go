// Package archive keeps an immutable copy of every accepted document
// version in S3-compatible object storage. Archiving is best effort: a
// storage hiccup never fails the write that triggered it.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sc "github.com/kollectcare/trialsync/internal/server/config"
)

// Archiver stores document version snapshots.
type Archiver interface {
	Archive(ctx context.Context, ownerID, docID string, version int64, data []byte) error
}

// S3Archiver writes snapshots to one bucket, keyed by owner, document and
// version.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

// NewS3Archiver builds the S3 client from server config.
func NewS3Archiver(ctx context.Context, cfg *sc.Config) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Archiver{client: client, bucket: cfg.S3Bucket}, nil
}

// Archive uploads one version snapshot. Versions are never overwritten in
// practice: the key embeds the version counter, which only moves forward.
func (a *S3Archiver) Archive(ctx context.Context, ownerID, docID string, version int64, data []byte) error {
	key := fmt.Sprintf("%s/%s/%d.json", ownerID, docID, version)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive upload failed: %w", err)
	}
	return nil
}
