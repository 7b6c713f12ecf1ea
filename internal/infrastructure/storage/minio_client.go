package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient stores attachments in an S3-compatible bucket with a public read policy.
type MinioClient struct {
	client     *minio.Client
	bucketName string
	baseURL    string
}

func NewMinioClient(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %v", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %v", err)
		}

		publicPolicy := `{
			"Version": "2012-10-17",
			"Statement": [
				{
					"Action": ["s3:GetObject"],
					"Effect": "Allow",
					"Principal": "*",
					"Resource": "arn:aws:s3:::` + bucketName + `/*"
				}
			]
		}`
		if err := client.SetBucketPolicy(ctx, bucketName, publicPolicy); err != nil {
			return nil, fmt.Errorf("failed to set bucket policy: %v", err)
		}
	}

	scheme := "http"
	if useSSL {
		scheme = "https"
	}

	return &MinioClient{
		client:     client,
		bucketName: bucketName,
		baseURL:    fmt.Sprintf("%s://%s/%s/", scheme, endpoint, bucketName),
	}, nil
}

func (c *MinioClient) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	_, err := c.client.PutObject(ctx, c.bucketName, key, r, -1, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %v", err)
	}
	return nil
}

func (c *MinioClient) DownloadURL(ctx context.Context, key string) (string, error) {
	if _, err := c.client.StatObject(ctx, c.bucketName, key, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to stat object: %v", err)
	}
	return c.baseURL + (&url.URL{Path: key}).EscapedPath(), nil
}

func (c *MinioClient) KeyFromURL(fileURL string) (string, error) {
	if !strings.HasPrefix(fileURL, c.baseURL) {
		return "", fmt.Errorf("url does not belong to bucket %s", c.bucketName)
	}
	key, err := url.PathUnescape(fileURL[len(c.baseURL):])
	if err != nil {
		return "", fmt.Errorf("invalid object url: %v", err)
	}
	return key, nil
}

func (c *MinioClient) Delete(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}
	return nil
}

func (c *MinioClient) Close() error {
	return nil
}
