package uploads

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

const downloadURLTTL = 5 * time.Minute

// BlobStorage stores uploads in an S3-compatible bucket addressed by generated keys.
// Keys are opaque and server-generated, so no filesystem containment applies.
type BlobStorage struct {
	client   *minio.Client
	bucket   string
	endpoint string
	logger   *logrus.Entry
}

// BlobConfig addresses the bucket.
type BlobConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func NewBlobStorage(cfg BlobConfig, logger *logrus.Entry) (*BlobStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &BlobStorage{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: cfg.Endpoint,
		logger:   logger.WithField("component", "blob-storage"),
	}, nil
}

// KeyFromLocator accepts a bare key or an object URL on this bucket and returns the key.
func (s *BlobStorage) KeyFromLocator(locator string) (string, bool) {
	key := locator
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", false
		}
		path := strings.TrimPrefix(u.Path, "/")
		switch {
		case strings.HasPrefix(path, s.bucket+"/"):
			key = strings.TrimPrefix(path, s.bucket+"/")
		case strings.HasPrefix(u.Host, s.bucket+"."):
			key = path
		default:
			return "", false
		}
	}
	if !strings.HasPrefix(key, "uploads/") || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// OwnsLocator reports whether locator addresses an upload in this bucket.
func (s *BlobStorage) OwnsLocator(locator string) bool {
	_, ok := s.KeyFromLocator(locator)
	return ok
}

func (s *BlobStorage) Save(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Open returns a short-lived presigned GET URL instead of proxying bytes.
func (s *BlobStorage) Open(ctx context.Context, locator string) (*Download, error) {
	key, ok := s.KeyFromLocator(locator)
	if !ok {
		return nil, invalidPath()
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrFileMissing
		}
		return nil, err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, downloadURLTTL, url.Values{})
	if err != nil {
		return nil, err
	}
	return &Download{RedirectURL: u.String()}, nil
}

func (s *BlobStorage) Delete(ctx context.Context, locator string) error {
	key, ok := s.KeyFromLocator(locator)
	if !ok {
		return invalidPath()
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// PresignUpload issues a POST policy scoped to key, capped at maxBytes and expiring after ttl.
func (s *BlobStorage) PresignUpload(ctx context.Context, key string, maxBytes int64, ttl time.Duration) (*PresignedUpload, error) {
	expires := time.Now().UTC().Add(ttl)
	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(s.bucket); err != nil {
		return nil, err
	}
	if err := policy.SetKey(key); err != nil {
		return nil, err
	}
	if err := policy.SetExpires(expires); err != nil {
		return nil, err
	}
	if err := policy.SetContentLengthRange(1, maxBytes); err != nil {
		return nil, err
	}
	u, fields, err := s.client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return nil, err
	}
	return &PresignedUpload{Key: key, URL: u.String(), Fields: fields, ExpiresAt: expires}, nil
}
