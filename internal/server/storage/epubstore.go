package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidTokenID   = errors.New("invalid token id")
	ErrInvalidExtension = errors.New("invalid file extension")
)

// extPattern restricts declared extensions to a single dot followed by
// alphanumerics. Anything else (separators, dots, empty) is rejected
// before it can reach the filesystem.
var extPattern = regexp.MustCompile(`^\.[a-z0-9]+$`)

// ContentKey names one stored file: a validated token identifier plus
// a declared extension. Filenames are derived only from this key,
// never from raw request strings.
type ContentKey struct {
	TokenID int64
	Ext     string
}

// ParseContentKey validates a raw token id (from the URL path) and the
// extension of the uploaded file's original name. A missing extension
// defaults to ".epub"; a malformed one is an error.
func ParseContentKey(rawTokenID, originalName string) (ContentKey, error) {
	tokenID, err := strconv.ParseInt(rawTokenID, 10, 64)
	if err != nil || tokenID <= 0 {
		return ContentKey{}, fmt.Errorf("%w: %q", ErrInvalidTokenID, rawTokenID)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".epub"
	}
	if !extPattern.MatchString(ext) {
		return ContentKey{}, fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
	}

	return ContentKey{TokenID: tokenID, Ext: ext}, nil
}

// Filename returns the on-disk name for the key, e.g. "42.epub".
func (k ContentKey) Filename() string {
	return strconv.FormatInt(k.TokenID, 10) + k.Ext
}

// Store defines the interface for file storage backends.
// This allows swapping filesystem for S3 or other backends later.
type Store interface {
	Save(key ContentKey, data io.Reader) (int64, error)
	Delete(key ContentKey) error
	EnsureDir() error
	TotalSize() (int64, error)
}

// FileSystemStore keeps uploaded EPUBs in a single flat directory.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data to the file named by the key, replacing any
// previous upload for the same key. The write lands in a temp file
// and is renamed into place on success, so an interrupted upload never
// clobbers a previously stored good copy. Returns the number of bytes
// written.
func (fs *FileSystemStore) Save(key ContentKey, data io.Reader) (int64, error) {
	filePath := filepath.Join(fs.basePath, key.Filename())

	tmp, err := os.CreateTemp(fs.basePath, key.Filename()+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file for %s: %w", filePath, err)
	}

	n, err := io.Copy(tmp, data)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to replace %s: %w", filePath, err)
	}

	return n, nil
}

// Delete removes the stored file for a key.
func (fs *FileSystemStore) Delete(key ContentKey) error {
	filePath := filepath.Join(fs.basePath, key.Filename())
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// TotalSize returns the combined size in bytes of all stored files.
func (fs *FileSystemStore) TotalSize() (int64, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		total += info.Size()
	}
	return total, nil
}
