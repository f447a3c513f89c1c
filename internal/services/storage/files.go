package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	resultPrefix   = "result_"
	snapshotPrefix = "snapshot_"
)

// ErrInvalidName is returned for file names that would escape their folder.
var ErrInvalidName = errors.New("invalid file name")

// FileStore keeps uploaded media and generated results on local disk.
type FileStore struct {
	uploadDir string
	resultDir string
	mu        sync.Mutex
}

// NewFileStore creates the upload and result folders when missing.
func NewFileStore(uploadDir, resultDir string) (*FileStore, error) {
	for _, dir := range []string{uploadDir, resultDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &FileStore{uploadDir: uploadDir, resultDir: resultDir}, nil
}

// SaveUpload writes src under a fresh random name keeping the extension of
// originalName. It returns the stored name and the number of bytes written.
func (s *FileStore) SaveUpload(src io.Reader, originalName string) (string, int64, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	path := filepath.Join(s.uploadDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}

	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", n, fmt.Errorf("failed to save upload: %w", err)
	}
	return name, n, nil
}

// ResultName derives the annotated output name for an upload. Videos are
// always re-encoded to MP4.
func ResultName(uploadName string, video bool) string {
	if video {
		return resultPrefix + strings.TrimSuffix(uploadName, filepath.Ext(uploadName)) + ".mp4"
	}
	return resultPrefix + uploadName
}

// SnapshotName returns the snapshot file name of an analysis.
func SnapshotName(id int64) string {
	return fmt.Sprintf("%s%d.jpg", snapshotPrefix, id)
}

// UploadPath returns the full path of a stored upload.
func (s *FileStore) UploadPath(name string) string {
	return filepath.Join(s.uploadDir, name)
}

// ResultPath returns the full path of a result or snapshot file.
func (s *FileStore) ResultPath(name string) string {
	return filepath.Join(s.resultDir, name)
}

// ResolveResult validates a user supplied name and returns its path in the
// result folder.
func (s *FileStore) ResolveResult(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	return s.ResultPath(name), nil
}

// RemoveUpload deletes a stored upload. Missing files are not an error.
func (s *FileStore) RemoveUpload(name string) (bool, error) {
	return s.remove(s.uploadDir, name)
}

// RemoveResult deletes a result or snapshot file. Missing files are not an error.
func (s *FileStore) RemoveResult(name string) (bool, error) {
	return s.remove(s.resultDir, name)
}

func (s *FileStore) remove(dir, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	if filepath.Base(name) != name {
		return false, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return true, nil
}

// ClearSnapshots removes every snapshot from the result folder.
func (s *FileStore) ClearSnapshots() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.resultDir, snapshotPrefix+"*.jpg"))
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Usage returns the size in bytes of the upload and result folders.
func (s *FileStore) Usage() (uploads, results int64, err error) {
	if uploads, err = dirSize(s.uploadDir); err != nil {
		return 0, 0, err
	}
	if results, err = dirSize(s.resultDir); err != nil {
		return 0, 0, err
	}
	return uploads, results, nil
}

func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
