package qart

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultPresignExpiry is how long download links stay valid.
const DefaultPresignExpiry = time.Hour

// S3Store implements Store using MinIO/S3-compatible storage. Paths below
// PodRoot map to keys below Prefix in the bucket the jobs mount.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
	root   string
	expiry time.Duration
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	Endpoint  string // host:port (e.g., "localhost:9000")
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool

	// PodRoot is the bucket mount point inside job pods.
	PodRoot string
	// Prefix is prepended to keys, for buckets mounted from a subdirectory.
	Prefix string
	Expiry time.Duration
}

// NewS3Store creates a new S3Store with the given configuration.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		root:   cfg.PodRoot,
		expiry: expiry,
	}, nil
}

// Key returns the object key for a pod path.
func (s *S3Store) Key(podPath string) (string, error) {
	rel, err := relativeTo(s.root, podPath)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return rel, nil
	}
	return s.prefix + "/" + rel, nil
}

// Stat checks the object and presigns a download link for it.
func (s *S3Store) Stat(ctx context.Context, podPath string) (*Artifact, error) {
	key, err := s.Key(podPath)
	if err != nil {
		return nil, err
	}

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.Size == 0 {
		return nil, ErrNotFound
	}

	url, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, nil)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Key:          key,
		Size:         info.Size,
		LastModified: info.LastModified,
		URL:          url.String(),
	}, nil
}

// Open streams the object. Missing keys surface here rather than on the
// first read.
func (s *S3Store) Open(ctx context.Context, podPath string) (io.ReadCloser, error) {
	key, err := s.Key(podPath)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

// Ensure S3Store implements Store.
var _ Store = (*S3Store)(nil)
