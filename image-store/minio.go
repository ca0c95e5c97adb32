package image_store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/d0rc/geo-locator/settings"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio keeps images in a MinIO or any S3 compatible bucket.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinio(config *settings.ObjectStoreConfigurationSection) (*Minio, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("object-store.bucket is empty")
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating minio client for %s: %w", config.Endpoint, err)
	}

	return &Minio{
		client: client,
		bucket: config.Bucket,
		prefix: config.Prefix,
	}, nil
}

func (m *Minio) key(name string) string {
	return path.Join(m.prefix, strings.TrimPrefix(path.Clean("/"+name), "/"))
}

func (m *Minio) Put(ctx context.Context, name string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.key(name),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType(name)})
	return err
}

func (m *Minio) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

func (m *Minio) Location(name string) string {
	return "s3://" + m.bucket + "/" + m.key(name)
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return "application/octet-stream"
}
