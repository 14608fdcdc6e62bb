package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	errs "github.com/alexjbarnes/tracker-sync/internal/errors"
)

// S3Config holds the settings for an S3 (or MinIO) backed remote.
type S3Config struct {
	Bucket    string
	Key       string
	Region    string
	AccessKey string
	SecretKey string

	// Endpoint overrides the AWS endpoint for S3-compatible stores such
	// as MinIO. Path-style addressing is enabled when it is set.
	Endpoint string
}

// S3Transport stores the snapshot blob as a single S3 object.
type S3Transport struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3 builds an S3 transport from static credentials.
func NewS3(ctx context.Context, cfg S3Config) (*S3Transport, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Transport{client: client, bucket: cfg.Bucket, key: cfg.Key}, nil
}

// Upload replaces the remote snapshot object.
func (t *S3Transport) Upload(ctx context.Context, data []byte) error {
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(t.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot to s3://%s/%s: %w", t.bucket, t.key, err)
	}

	return nil
}

// Download fetches the remote snapshot object.
func (t *S3Transport) Download(ctx context.Context) ([]byte, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, errs.ErrNoSnapshot
		}

		return nil, fmt.Errorf("downloading snapshot from s3://%s/%s: %w", t.bucket, t.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot body: %w", err)
	}

	return data, nil
}

// Metadata returns the remote object's last-modified time and size.
func (t *S3Transport) Metadata(ctx context.Context) (*Metadata, error) {
	out, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, errs.ErrNoSnapshot
		}

		return nil, fmt.Errorf("heading snapshot at s3://%s/%s: %w", t.bucket, t.key, err)
	}

	md := &Metadata{}
	if out.LastModified != nil {
		md.ModifiedAt = *out.LastModified
	}

	if out.ContentLength != nil {
		md.Size = *out.ContentLength
	}

	return md, nil
}
