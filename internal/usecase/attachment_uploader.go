package usecase

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"speak/internal/domain/entity"
	"speak/internal/domain/service"
	"speak/internal/infrastructure/metrics"
	"speak/pkg/errors"
	"speak/pkg/logger"
)

type AttachmentUploader struct {
	store service.BlobStore

	mu    sync.Mutex
	now   func() time.Time
	stamp int64
}

func NewAttachmentUploader(store service.BlobStore) *AttachmentUploader {
	return &AttachmentUploader{
		store: store,
		now:   time.Now,
	}
}

// nextStamp returns a strictly increasing millisecond timestamp so two uploads in the
// same millisecond never share a key.
func (u *AttachmentUploader) nextStamp() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	ms := u.now().UnixMilli()
	if ms <= u.stamp {
		ms = u.stamp + 1
	}
	u.stamp = ms
	return ms
}

func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// AttachmentKey lays out blobs as chatImages/{postId}/{ms}.jpg and
// chatFiles/{postId}/{ms}_{fileName}.
func AttachmentKey(postID string, kind entity.MessageType, fileName string, stamp int64) string {
	if kind == entity.MessageTypeImage {
		return fmt.Sprintf("chatImages/%s/%d.jpg", postID, stamp)
	}
	return fmt.Sprintf("chatFiles/%s/%d_%s", postID, stamp, fileName)
}

// Upload stores the blob and resolves its download URL. Any failure is an UploadError and
// leaves nothing for the caller to clean up.
func (u *AttachmentUploader) Upload(ctx context.Context, postID string, kind entity.MessageType, fileName, contentType string, r io.Reader) (*entity.Attachment, error) {
	if !kind.IsAttachment() {
		return nil, errors.Validation("Attachment must be an image or a file")
	}
	fileName = cleanFileName(fileName)
	if kind == entity.MessageTypeFile && fileName == "" {
		return nil, errors.Validation("File name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
		if kind == entity.MessageTypeImage {
			contentType = "image/jpeg"
		}
	}

	key := AttachmentKey(postID, kind, fileName, u.nextStamp())

	if err := u.store.Upload(ctx, key, r, contentType); err != nil {
		metrics.UploadFailures.Inc()
		logger.Error("Attachment upload failed: %s", logger.KV("post", postID, "key", key, "error", err))
		return nil, errors.UploadFailed("Failed to upload attachment", err)
	}

	url, err := u.store.DownloadURL(ctx, key)
	if err != nil {
		metrics.UploadFailures.Inc()
		u.removeKey(ctx, key)
		return nil, errors.UploadFailed("Failed to resolve attachment URL", err)
	}

	return &entity.Attachment{
		Kind:        kind,
		Key:         key,
		URL:         url,
		FileName:    fileName,
		ContentType: contentType,
	}, nil
}

// Remove deletes the blob behind a message. Best effort: failures are logged only.
func (u *AttachmentUploader) Remove(ctx context.Context, message *entity.Message) {
	key := message.StoragePath
	if key == "" && message.FileURL != "" {
		var err error
		key, err = u.store.KeyFromURL(message.FileURL)
		if err != nil {
			logger.Warn("Cannot resolve blob for message %s: %v", message.ID, err)
			return
		}
	}
	if key == "" {
		return
	}
	u.removeKey(ctx, key)
}

func (u *AttachmentUploader) removeKey(ctx context.Context, key string) {
	if err := u.store.Delete(ctx, key); err != nil {
		logger.Warn("Failed to delete blob %s: %v", key, err)
	}
}
