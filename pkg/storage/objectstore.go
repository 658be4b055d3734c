package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore is a filesystem-backed stand-in for the platform object storage.
// Objects live under baseDir/bucket/key so a deployment can swap in a real
// bucket store without touching callers.
type ObjectStore struct {
	baseDir string
}

// NewObjectStore ensures the base directory exists and returns a handle.
func NewObjectStore(baseDir string) (*ObjectStore, error) {
	if baseDir == "" {
		baseDir = "./objects"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create object store directory: %w", err)
	}
	return &ObjectStore{baseDir: baseDir}, nil
}

// Put writes object bytes under bucket/key, creating parent directories.
func (s *ObjectStore) Put(bucket, key string, data []byte) error {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare object directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get reads the full object back.
func (s *ObjectStore) Get(bucket, key string) ([]byte, error) {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Delete removes an object if present. Missing objects are not an error.
func (s *ObjectStore) Delete(bucket, key string) error {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *ObjectStore) resolve(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("bucket and key are required")
	}
	cleaned := filepath.Clean(filepath.Join(s.baseDir, bucket, key))
	root := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(cleaned, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("object key escapes store root: %s", key)
	}
	return cleaned, nil
}
