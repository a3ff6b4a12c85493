// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backup uploads gzipped snapshots of the long-term citation store
// to S3-compatible object storage and rotates old snapshots.
package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/pkg/types"
)

const (
	defaultPrefix = "citation-ltm/"
	defaultKeep   = 4
	keyLayout     = "2006-01-02T15-04-05Z"
)

// ErrNoBucket is returned when no bucket is configured.
var ErrNoBucket = errors.New("backup bucket not configured")

// ObjectStore is the subset of the S3 API used for snapshots.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Exporter writes a snapshot of the store as JSON.
type Exporter interface {
	ExportJSON(ctx context.Context, w io.Writer) error
}

// Result describes a completed backup.
type Result struct {
	Key     string
	Bytes   int
	Deleted []string
}

// Uploader writes snapshots to one bucket.
type Uploader struct {
	client ObjectStore
	bucket string
	prefix string
	keep   int
	logger *zap.Logger
	now    func() time.Time
}

// NewClient builds an S3 client from cfg. A custom endpoint switches to
// path-style addressing for S3-compatible providers.
func NewClient(ctx context.Context, cfg types.BackupConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// New returns an Uploader for cfg.Bucket.
func New(client ObjectStore, cfg types.BackupConfig, logger *zap.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	u := &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		keep:   cfg.Keep,
		logger: logger,
		now:    time.Now,
	}
	if u.prefix == "" {
		u.prefix = defaultPrefix
	}
	if u.keep <= 0 {
		u.keep = defaultKeep
	}
	if u.logger == nil {
		u.logger = zap.NewNop()
	}
	return u, nil
}

// Run uploads a snapshot of src and deletes the oldest snapshots beyond
// the retention count. Failed deletions are logged, not returned.
func (u *Uploader) Run(ctx context.Context, src Exporter) (Result, error) {
	data, err := snapshot(ctx, src)
	if err != nil {
		return Result{}, err
	}

	key := u.prefix + "ltm-" + u.now().UTC().Format(keyLayout) + ".json.gz"
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(data),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("uploading %s: %w", key, err)
	}
	u.logger.Info("backup uploaded",
		zap.String("bucket", u.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)

	deleted, err := u.rotate(ctx)
	if err != nil {
		return Result{Key: key, Bytes: len(data)}, err
	}
	return Result{Key: key, Bytes: len(data), Deleted: deleted}, nil
}

func snapshot(ctx context.Context, src Exporter) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := src.ExportJSON(ctx, zw); err != nil {
		return nil, fmt.Errorf("exporting store: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// rotate keeps the newest u.keep snapshots under the prefix.
func (u *Uploader) rotate(ctx context.Context) ([]string, error) {
	type object struct {
		key      string
		modified time.Time
	}
	var objects []object

	p := s3.NewListObjectsV2Paginator(u.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(u.bucket),
		Prefix: aws.String(u.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing backups: %w", err)
		}
		for _, o := range page.Contents {
			obj := object{key: aws.ToString(o.Key)}
			if o.LastModified != nil {
				obj.modified = *o.LastModified
			}
			objects = append(objects, obj)
		}
	}

	if len(objects) <= u.keep {
		return nil, nil
	}
	sort.Slice(objects, func(i, j int) bool {
		if !objects[i].modified.Equal(objects[j].modified) {
			return objects[i].modified.After(objects[j].modified)
		}
		return objects[i].key > objects[j].key
	})

	var deleted []string
	for _, o := range objects[u.keep:] {
		_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(u.bucket),
			Key:    aws.String(o.key),
		})
		if err != nil {
			u.logger.Warn("deleting old backup failed", zap.String("key", o.key), zap.Error(err))
			continue
		}
		u.logger.Info("deleted old backup", zap.String("key", o.key))
		deleted = append(deleted, o.key)
	}
	return deleted, nil
}
