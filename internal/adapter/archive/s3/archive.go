// Package s3 archives finished transcripts to an S3 or S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

var ErrBucketRequired = errors.New("archive bucket is required")

// ObjectPutter is the subset of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type Archive struct {
	client ObjectPutter
	bucket string
	prefix string
}

// New builds an archive using the default AWS credential chain unless static
// credentials are configured.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// S3-compatible stores (MinIO, R2) want path-style addressing.
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewWithClient(client ObjectPutter, bucket, prefix string) *Archive {
	return &Archive{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *Archive) Name() string {
	return "s3"
}

func (a *Archive) key(jobID, ext string) string {
	return path.Join(a.prefix, jobID+ext)
}

// Deliver uploads the transcript as text and the job record as JSON. Failed
// jobs have nothing to archive.
func (a *Archive) Deliver(ctx context.Context, job *domain.Job) error {
	if job.State != domain.JobStateCompleted || job.Result == nil {
		return nil
	}

	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	objects := []struct {
		key         string
		body        []byte
		contentType string
	}{
		{a.key(job.ID, ".txt"), []byte(*job.Result), "text/plain; charset=utf-8"},
		{a.key(job.ID, ".json"), record, "application/json"},
	}
	for _, obj := range objects {
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(a.bucket),
			Key:           aws.String(obj.key),
			Body:          bytes.NewReader(obj.body),
			ContentLength: aws.Int64(int64(len(obj.body))),
			ContentType:   aws.String(obj.contentType),
		})
		if err != nil {
			return fmt.Errorf("put s3://%s/%s: %w", a.bucket, obj.key, err)
		}
	}
	return nil
}

var _ port.ResultHook = (*Archive)(nil)
