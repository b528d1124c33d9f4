package reporting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client the publisher uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config selects the bucket reports are uploaded to. Endpoint is only set
// for S3-compatible stores; it switches the client to path-style addressing.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Publisher uploads report artifacts to a bucket.
type S3Publisher struct {
	client S3API
	bucket string
	prefix string
	logger *zap.Logger
}

func NewS3Publisher(client S3API, bucket, prefix string, logger *zap.Logger) (*S3Publisher, error) {
	if client == nil {
		return nil, errors.New("s3 publisher: client is required")
	}
	if bucket == "" {
		return nil, errors.New("s3 publisher: bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}, nil
}

// Key returns the object key for an artifact: <prefix>/<suite>/<run-id>/<name>.
func (p *S3Publisher) Key(report *Report, artifact Artifact) string {
	return path.Join(p.prefix, safeSegment(report.TestSuite), safeSegment(report.RunID), artifact.Name)
}

// Publish uploads every artifact of report and returns the object keys.
func (p *S3Publisher) Publish(ctx context.Context, report *Report) ([]string, error) {
	keys := make([]string, 0, len(report.Artifacts))
	for _, a := range report.Artifacts {
		f, err := os.Open(a.Path)
		if err != nil {
			return keys, fmt.Errorf("open artifact: %w", err)
		}

		key := p.Key(report, a)
		input := &s3.PutObjectInput{
			Bucket:        aws.String(p.bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(a.Size),
			ContentType:   aws.String(a.ContentType),
			Metadata: map[string]string{
				"run-id":    report.RunID,
				"report-id": report.ID,
			},
		}
		if a.Compressed {
			input.ContentEncoding = aws.String("gzip")
		}

		_, err = p.client.PutObject(ctx, input)
		_ = f.Close()
		if err != nil {
			return keys, fmt.Errorf("put %s: %w", key, err)
		}

		p.logger.Info("report uploaded",
			zap.String("bucket", p.bucket),
			zap.String("key", key))
		keys = append(keys, key)
	}
	return keys, nil
}
