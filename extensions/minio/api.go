package minio

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// shareExpiry is how long presigned links stay valid.
const shareExpiry = time.Hour

// objectStore is the part of an S3 compatible server the screens use.
type objectStore interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	// ListObjects lists one level below prefix. Sub-prefixes come back
	// as keys ending in "/".
	ListObjects(ctx context.Context, bucket, prefix string) ([]minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error)
	RemoveObject(ctx context.Context, bucket, key string) error
}

// storeConfig is the connection part of the preferences.
type storeConfig struct {
	Endpoint  string
	Port      int
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

var schemeRE = regexp.MustCompile(`^https?://`)

// address strips any scheme from the endpoint and appends the port when
// one is configured.
func (c storeConfig) address() string {
	host := schemeRE.ReplaceAllString(c.Endpoint, "")
	if c.Port > 0 {
		host += ":" + strconv.Itoa(c.Port)
	}
	return host
}

type minioStore struct {
	client *minio.Client
}

func newMinioStore(cfg storeConfig) (*minioStore, error) {
	client, err := minio.New(cfg.address(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &minioStore{client: client}, nil
}

func (s *minioStore) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	return s.client.ListBuckets(ctx)
}

func (s *minioStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.client.BucketExists(ctx, bucket)
}

func (s *minioStore) ListObjects(ctx context.Context, bucket, prefix string) ([]minio.ObjectInfo, error) {
	var out []minio.ObjectInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s/%s: %w", bucket, prefix, obj.Err)
		}
		out = append(out, obj)
	}
	return out, nil
}

func (s *minioStore) PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error) {
	return s.client.PresignedGetObject(ctx, bucket, key, expiry, nil)
}

func (s *minioStore) RemoveObject(ctx context.Context, bucket, key string) error {
	return s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

// describe turns S3 error responses into their server message.
func describe(err error) error {
	if err == nil {
		return nil
	}
	if resp := minio.ToErrorResponse(err); resp.Code != "" && resp.Message != "" {
		return fmt.Errorf("%s: %w", resp.Code, err)
	}
	return err
}
