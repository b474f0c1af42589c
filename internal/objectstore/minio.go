package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"go-etl-pipeline/internal/model"
)

// Options configures the MinIO/S3 client.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// MinIO implements Store on top of minio-go.
type MinIO struct {
	client *minio.Client
}

func NewMinIO(opts Options) (*MinIO, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create minio client for %s: %w", opts.Endpoint, err)
	}
	return &MinIO{client: cli}, nil
}

// CheckBucket fails when bucket does not exist. Buckets are never created
// implicitly.
func (m *MinIO) CheckBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return classify("bucket exists "+bucket, err)
	}
	if !exists {
		return model.ResourceMissing("bucket exists", fmt.Errorf("bucket %q not found", bucket))
	}
	return nil
}

func (m *MinIO) PutFile(ctx context.Context, ref Ref, localPath, contentType string) error {
	info, err := m.client.FPutObject(ctx, ref.Bucket, ref.Key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classify("put "+ref.Path(), err)
	}
	slog.Debug("object uploaded", "bucket", ref.Bucket, "key", ref.Key, "size", info.Size)
	return nil
}

func (m *MinIO) GetFile(ctx context.Context, ref Ref, localPath string) error {
	if err := m.client.FGetObject(ctx, ref.Bucket, ref.Key, localPath, minio.GetObjectOptions{}); err != nil {
		return classify("get "+ref.Path(), err)
	}
	return nil
}

// classify maps minio failures onto pipeline error kinds.
func classify(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket":
		return model.ResourceMissing(op, err)
	case resp.StatusCode == http.StatusNotFound:
		return model.ResourceMissing(op, err)
	default:
		return model.TransientIO(op, err)
	}
}
