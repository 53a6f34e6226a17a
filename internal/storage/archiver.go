package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes the S3-compatible endpoint recordings are archived to.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object name.
	Prefix string
}

// MinioArchiver uploads finalized recordings and screenshots to an
// S3-compatible bucket. Satisfies event.Archiver.
type MinioArchiver struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioArchiver connects to the endpoint and ensures the bucket exists.
func NewMinioArchiver(cfg Config) (*MinioArchiver, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("archive access key and secret key are required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "vigil-recordings"
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating archive client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := cli.BucketExists(ctx, cfg.Bucket)
		if checkErr != nil || !exists {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioArchiver{client: cli, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload stores a local file under objectName in the bucket.
func (a *MinioArchiver) Upload(ctx context.Context, localPath, objectName string) error {
	if a.prefix != "" {
		objectName = a.prefix + "/" + objectName
	}

	contentType := "application/octet-stream"
	switch filepath.Ext(localPath) {
	case ".mp4":
		contentType = "video/mp4"
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	}

	_, err := a.client.FPutObject(ctx, a.bucket, objectName, localPath,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", objectName, err)
	}
	return nil
}
