// Package storage keeps data export bundles in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/config"
)

const (
	defaultPresignTTL = 15 * time.Minute
	exportContentType = "application/json"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type v4Request = v4.PresignedHTTPRequest

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4Request, error)
}

// ExportStore uploads export bundles and hands back a presigned download URL.
type ExportStore struct {
	putter     objectPutter
	presigner  objectPresigner
	bucket     string
	presignTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// Seams for tests.
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

// NewExportStore builds an S3 client against cfg.Endpoint (path-style for MinIO).
func NewExportStore(ctx context.Context, cfg config.StorageSettings, logger *zap.Logger) (*ExportStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("export storage configured",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
	)

	return &ExportStore{
		putter:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		presignTTL: ttl,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// StoreExport uploads payload under exports/<user>/<timestamp>.json and returns a presigned GET URL.
func (s *ExportStore) StoreExport(ctx context.Context, userID string, payload []byte) (string, error) {
	key := fmt.Sprintf("exports/%s/%s.json", userID, s.now().UTC().Format("20060102T150405Z"))

	if _, err := s.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(exportContentType),
	}); err != nil {
		return "", fmt.Errorf("storage: put export: %w", err)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("storage: presign export: %w", err)
	}

	s.logger.Debug("export stored", zap.String("key", key))
	return req.URL, nil
}

var _ port.ExportStorage = (*ExportStore)(nil)
