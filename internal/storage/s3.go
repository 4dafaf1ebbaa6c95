package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/bookgraph/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config describes an S3 compatible bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// ConfigFromEnv reads the S3_* variables. ok is false when no bucket is
// configured.
func ConfigFromEnv() (cfg Config, ok bool) {
	cfg = Config{
		Endpoint:  util.GetEnvString("S3_ENDPOINT", ""),
		Region:    util.GetEnvString("S3_REGION", "us-east-1"),
		AccessKey: util.GetEnvString("S3_ACCESS_KEY", ""),
		SecretKey: util.GetEnvString("S3_SECRET_KEY", ""),
		Bucket:    util.GetEnvString("S3_BUCKET", ""),
	}
	return cfg, cfg.Bucket != ""
}

// NewS3Client creates a path-style client for cfg. Static credentials are
// used when both keys are set, the default AWS chain otherwise.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return client, nil
}
