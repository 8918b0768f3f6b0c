// Package export archives the full log text of terminal jobs to
// S3-compatible storage so compliance reviews outlive the backend's
// retention window.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/priority1ahmad/p1lending-etl-sub000/internal/config"
)

// Archiver uploads job logs to one bucket under a fixed key prefix.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver creates an archiver from export configuration. Returns nil
// without error when export is disabled.
func NewArchiver(cfg *config.ExportConfig) (*Archiver, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("export enabled but no bucket configured")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			scheme := "http"
			if cfg.UseSSL {
				scheme = "https"
			}
			o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", scheme, normalizeEndpoint(cfg.Endpoint)))
			// Path-style for S3-compatible services
			o.UsePathStyle = true
		}
	})

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// normalizeEndpoint removes protocol prefix and path from endpoint
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	if idx := strings.Index(endpoint, "/"); idx != -1 {
		endpoint = endpoint[:idx]
	}
	return strings.TrimSuffix(endpoint, "/")
}

// EnsureBucket creates the bucket if it doesn't exist.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Key returns the object key for a job's archived log.
func (a *Archiver) Key(jobID string) string {
	if a.prefix == "" {
		return jobID + ".log"
	}
	return a.prefix + "/" + jobID + ".log"
}

// ArchiveLog uploads the full log text for a terminal job.
func (a *Archiver) ArchiveLog(ctx context.Context, jobID, logText string) error {
	body := strings.NewReader(logText)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.Key(jobID)),
		Body:          body,
		ContentLength: aws.Int64(int64(len(logText))),
		ContentType:   aws.String("text/plain; charset=utf-8"),
		Metadata: map[string]string{
			"job-id":      jobID,
			"archived-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive log for job %s: %w", jobID, err)
	}
	return nil
}

// Exists reports whether a job's log was already archived.
func (a *Archiver) Exists(ctx context.Context, jobID string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(jobID)),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check archived log: %w", err)
	}
	return true, nil
}
