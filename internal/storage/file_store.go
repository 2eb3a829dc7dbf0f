package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// FileStore writes uploaded attachments to a directory on local disk.
// Stored names carry a second-granularity timestamp prefix. Two uploads
// of the same name within the same second collide and the later write
// wins; known limitation, there is no uniqueness suffix.
type FileStore struct {
	basePath string
}

// NewFileStore creates the upload directory if needed and returns a store
// rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("upload directory must not be empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath reports the directory the store writes into.
func (f *FileStore) BasePath() string {
	return f.basePath
}

// Save streams r to disk under a sanitized, timestamp-prefixed name and
// returns the stored name plus the full path written.
func (f *FileStore) Save(originalName string, r io.Reader) (string, string, error) {
	storedName := time.Now().Format("20060102150405") + "_" + sanitizeFileName(originalName)
	fullPath := filepath.Join(f.basePath, storedName)

	out, err := os.Create(fullPath)
	if err != nil {
		return "", "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(fullPath)
		return "", "", fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(fullPath)
		return "", "", fmt.Errorf("close file: %w", err)
	}
	return storedName, fullPath, nil
}

// Open returns a reader for a previously stored file.
func (f *FileStore) Open(path string) (*os.File, error) {
	return os.Open(path)
}

// Remove deletes a stored file. A missing file is not an error: the row
// is authoritative and a stray delete must not block cleanup.
func (f *FileStore) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// sanitizeFileName replaces anything outside [a-zA-Z0-9.-] with an
// underscore so uploaded names are safe as path components.
func sanitizeFileName(name string) string {
	base := filepath.Base(name)
	return unsafeNameChars.ReplaceAllString(base, "_")
}
