// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader copies a finished backup somewhere outside the host.
type Uploader interface {
	Upload(ctx context.Context, path, name string) error
}

// S3Config configures the S3-compatible offsite store.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to object keys, e.g. "backups/".
	Prefix string
}

// S3Uploader stores backups in an S3-compatible bucket.
type S3Uploader struct {
	client *minio.Client
	bucket string
	prefix string

	ensureOnce sync.Once
	ensureErr  error
}

// NewS3Uploader creates an uploader; no request is made until the first upload.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &S3Uploader{client: client, bucket: bucket, prefix: cfg.Prefix}, nil
}

func (u *S3Uploader) ensureBucket(ctx context.Context) error {
	u.ensureOnce.Do(func() {
		exists, err := u.client.BucketExists(ctx, u.bucket)
		if err != nil {
			u.ensureErr = err
			return
		}
		if !exists {
			u.ensureErr = u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{})
		}
	})
	if u.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", u.bucket, u.ensureErr)
	}
	return nil
}

// Upload puts the file at path into the bucket under prefix+name.
func (u *S3Uploader) Upload(ctx context.Context, path, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := u.ensureBucket(ctx); err != nil {
		return err
	}

	_, err := u.client.FPutObject(ctx, u.bucket, u.prefix+name, path, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put object to s3: %w", err)
	}
	return nil
}

// Job runs a scheduled backup followed by pruning and the optional offsite copy.
type Job struct {
	Manager  *Manager
	Keep     int
	Uploader Uploader
}

// Run executes one backup cycle.
func (j Job) Run(ctx context.Context) error {
	b, err := j.Manager.Create(ctx)
	if err != nil {
		return fmt.Errorf("scheduled backup: %w", err)
	}

	if j.Uploader != nil {
		if err := j.Uploader.Upload(ctx, filepath.Join(j.Manager.Dir(), b.Name), b.Name); err != nil {
			return fmt.Errorf("offsite copy of %s: %w", b.Name, err)
		}
	}

	if _, err := j.Manager.Prune(j.Keep); err != nil {
		return fmt.Errorf("pruning backups: %w", err)
	}
	return nil
}
