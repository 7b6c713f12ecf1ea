package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

const memoryURLPrefix = "memory://blobs/"

// MemoryBlobStore keeps blobs in process. It backs local development and tests;
// FailUploads makes every upload fail as if the network dropped mid-transfer.
type MemoryBlobStore struct {
	mu          sync.Mutex
	objects     map[string]memoryObject
	failUploads bool
	failDeletes bool
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		objects: make(map[string]memoryObject),
	}
}

func (s *MemoryBlobStore) FailUploads(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = fail
}

func (s *MemoryBlobStore) FailDeletes(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDeletes = fail
}

func (s *MemoryBlobStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("failed to read upload: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUploads {
		return fmt.Errorf("connection reset during upload of %s", key)
	}
	s.objects[key] = memoryObject{data: buf.Bytes(), contentType: contentType}
	return nil
}

func (s *MemoryBlobStore) DownloadURL(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("object %s does not exist", key)
	}
	return memoryURLPrefix + key, nil
}

func (s *MemoryBlobStore) KeyFromURL(fileURL string) (string, error) {
	if !strings.HasPrefix(fileURL, memoryURLPrefix) {
		return "", fmt.Errorf("invalid memory blob url")
	}
	return fileURL[len(memoryURLPrefix):], nil
}

func (s *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeletes {
		return fmt.Errorf("delete of %s refused", key)
	}
	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("object %s does not exist", key)
	}
	delete(s.objects, key)
	return nil
}

// Has reports whether key is stored.
func (s *MemoryBlobStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *MemoryBlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *MemoryBlobStore) Close() error {
	return nil
}
