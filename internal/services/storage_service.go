package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const attachmentsBucket = "buildledger-attachments"

// StorageService stores invoice and quote attachments in object storage.
type StorageService interface {
	UploadAttachment(ctx context.Context, userID uuid.UUID, filename, contentType string, reader io.Reader, objectSize int64) (string, error)
	GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
	DeleteAttachment(ctx context.Context, objectName string) error
	EnsureBucketExists(ctx context.Context) error
}

type minioStorage struct {
	client *minio.Client
}

func NewStorageService(endpoint, accessKey, secretKey string, useSSL bool) (StorageService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioStorage{client: client}, nil
}

// UploadAttachment stores the attachment under a per-user prefix and
// returns the object name to persist on the invoice or quote row.
func (m *minioStorage) UploadAttachment(ctx context.Context, userID uuid.UUID, filename, contentType string, reader io.Reader, objectSize int64) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectName := fmt.Sprintf("%s/%s%s", userID.String(), uuid.NewString(), path.Ext(filename))

	_, err := m.client.PutObject(ctx, attachmentsBucket, objectName, reader, objectSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return objectName, nil
}

func (m *minioStorage) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, attachmentsBucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}

func (m *minioStorage) DeleteAttachment(ctx context.Context, objectName string) error {
	return m.client.RemoveObject(ctx, attachmentsBucket, objectName, minio.RemoveObjectOptions{})
}

func (m *minioStorage) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, attachmentsBucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, attachmentsBucket, minio.MakeBucketOptions{})
	}
	return nil
}
