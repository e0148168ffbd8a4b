package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Storage implements Storage interface for AWS S3 and S3-compatible services.
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
}

// S3Config holds S3-specific configuration. Credentials are resolved by the
// SDK from the environment, shared config files or instance metadata.
type S3Config struct {
	Region       string // Optional; SDK default chain otherwise
	Endpoint     string // Optional custom endpoint
	UsePathStyle bool   // For S3-compatible services
	Profile      string // Optional shared-config profile
}

// NewS3Storage creates a new S3 storage provider.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	// Create AWS config
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client
	client := s3.NewFromConfig(awsCfg, clientOptions(cfg)...)

	return &S3Storage{
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// loadOptions converts S3Config into SDK config loader options.
func loadOptions(cfg S3Config) []func(*config.LoadOptions) error {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	return opts
}

// clientOptions converts S3Config into S3 client options.
func clientOptions(cfg S3Config) []func(*s3.Options) {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = cfg.UsePathStyle
		},
	}

	// Add custom endpoint if provided
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return opts
}

// Upload implements Storage.Upload. Large bodies are sent as multipart uploads
// by the SDK upload manager.
func (s *S3Storage) Upload(ctx context.Context, bucket, key string, reader io.Reader, metadata map[string]string) error {
	_, err := s.uploader.Upload(ctx, putObjectInput(bucket, key, reader, metadata))
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

// Close implements Storage.Close.
func (s *S3Storage) Close() error {
	return nil
}

func putObjectInput(bucket, key string, body io.Reader, metadata map[string]string) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: metadata,
	}
}
