package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	camwatch "github.com/trailops/camwatch"
)

// S3Config holds the S3 acquirer configuration.
type S3Config struct {
	// Region is the AWS region (optional, defaults to us-east-1)
	Region string

	// Bucket is the S3 bucket the scraper drops snapshots in
	Bucket string

	// Prefix is the key prefix snapshots are listed under
	Prefix string
}

// DefaultS3Config returns a default S3 acquirer configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region: "us-east-1",
		Prefix: "snapshots/",
	}
}

// S3Source acquires the newest snapshot object under a key prefix. The
// portal scraper runs separately and drops one JSON object per extraction.
type S3Source struct {
	s3Client *s3.Client
	cfg      S3Config
	logger   *logrus.Logger
}

// NewS3Source creates an S3-backed acquirer.
//
// It uses the AWS SDK default credential chain:
//  1. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  2. Shared credentials file (~/.aws/credentials)
//  3. IAM role (if running on EC2)
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if err := validateS3Key(cfg.Prefix); err != nil {
		return nil, fmt.Errorf("invalid S3 prefix: %w", err)
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	// If no credentials provided in env, use anonymous
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		opts = append(opts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Source{
		s3Client: s3.NewFromConfig(awsCfg),
		cfg:      cfg,
		logger:   logrus.New(),
	}, nil
}

// SetLogger sets a custom logger for the acquirer.
func (s *S3Source) SetLogger(logger *logrus.Logger) {
	s.logger = logger
}

// Describe implements Acquirer.
func (s *S3Source) Describe() string {
	return "s3://" + s.cfg.Bucket + "/" + s.cfg.Prefix
}

// Acquire implements Acquirer: it lists objects under the prefix, picks the
// most recently modified one, and decodes it as a snapshot.
func (s *S3Source) Acquire(ctx context.Context) (*camwatch.Snapshot, error) {
	key, modified, err := s.newestKey(ctx)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"bucket": s.cfg.Bucket,
		"key":    key,
	})
	logger.Info("fetching snapshot from S3")

	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot object: %w", err)
	}
	defer getResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(getResp.Body, maxSnapshotSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot object: %w", err)
	}
	if len(data) > maxSnapshotSize {
		return nil, fmt.Errorf("snapshot object too large: more than %d bytes", maxSnapshotSize)
	}

	var snap camwatch.Snapshot
	if err := snap.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	if snap.ExtractedAt.IsZero() {
		snap.ExtractedAt = modified
	}

	logger.WithField("rows", len(snap.Rows)).Info("snapshot fetched")

	return &snap, nil
}

// newestKey finds the most recently modified object under the prefix.
func (s *S3Source) newestKey(ctx context.Context) (string, time.Time, error) {
	var (
		newest   string
		modified time.Time
	)

	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("failed to list snapshot objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || obj.LastModified == nil {
				continue
			}
			if validateS3Key(*obj.Key) != nil {
				continue
			}
			if obj.LastModified.After(modified) {
				newest = *obj.Key
				modified = *obj.LastModified
			}
		}
	}

	if newest == "" {
		return "", time.Time{}, fmt.Errorf("no snapshot objects under s3://%s/%s", s.cfg.Bucket, s.cfg.Prefix)
	}

	return newest, modified, nil
}

// validateS3Key rejects keys that could escape the snapshot drop area.
func validateS3Key(key string) error {
	if len(key) > 1024 {
		return fmt.Errorf("S3 key too long: %d characters (max 1024)", len(key))
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("S3 key contains path traversal: %s", key)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("S3 key should not start with /: %s", key)
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("S3 key contains null byte")
	}
	return nil
}
