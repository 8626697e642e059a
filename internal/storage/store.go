package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore persists opaque document blobs under logical keys
// ("registry", "bulletins", "list/<id>"). Write must be atomic: no reader
// or crash observes a torn blob.
type BlobStore interface {
	Read(key string) ([]byte, bool, error)
	Write(key string, content []byte) error
	Delete(key string) error
	Keys() ([]string, error)
}

var errInvalidBlobKey = errors.New("storage: invalid blob key")

const (
	blobFileSuffix = ".bin"
	listsDirName   = "lists"
	listKeyPrefix  = "list/"
)

// FileStore keeps each blob in its own file under a data directory, with
// per-list blobs nested in lists/.
type FileStore struct {
	root string
}

// NewFileStore ensures the data directory layout exists.
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage: data directory is required")
	}
	if err := os.MkdirAll(filepath.Join(root, listsDirName), 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) pathFor(key string) (string, error) {
	switch {
	case key == "registry" || key == "bulletins":
		return filepath.Join(s.root, key+blobFileSuffix), nil
	case strings.HasPrefix(key, listKeyPrefix):
		listID := strings.TrimPrefix(key, listKeyPrefix)
		if listID == "" || strings.ContainsAny(listID, "/\\") {
			return "", fmt.Errorf("%w: %q", errInvalidBlobKey, key)
		}
		return filepath.Join(s.root, listsDirName, listID+blobFileSuffix), nil
	default:
		return "", fmt.Errorf("%w: %q", errInvalidBlobKey, key)
	}
}

// Read returns the blob content and whether the key exists.
func (s *FileStore) Read(key string) ([]byte, bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, false, err
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// Write replaces the blob atomically: a uniquely named temp sibling is
// written and renamed over the target, and unlinked on failure.
func (s *FileStore) Write(key string, content []byte) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempName)
		return err
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, path); err != nil {
		_ = os.Remove(tempName)
		return err
	}
	return nil
}

// Delete removes the blob; deleting a missing key is not an error.
func (s *FileStore) Delete(key string) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Keys lists every stored logical key.
func (s *FileStore) Keys() ([]string, error) {
	keys := make([]string, 0)
	for _, name := range []string{"registry", "bulletins"} {
		if _, err := os.Stat(filepath.Join(s.root, name+blobFileSuffix)); err == nil {
			keys = append(keys, name)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	entries, err := os.ReadDir(filepath.Join(s.root, listsDirName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return keys, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, blobFileSuffix) || strings.HasPrefix(name, ".") {
			continue
		}
		keys = append(keys, listKeyPrefix+strings.TrimSuffix(name, blobFileSuffix))
	}
	return keys, nil
}
