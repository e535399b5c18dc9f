package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem is an ObjectStore rooted at a base directory. Handles are
// slash-separated paths relative to the base.
type FileSystem struct {
	baseDir string
}

func NewFileSystem(baseDir string) *FileSystem {
	return &FileSystem{
		baseDir: filepath.Clean(baseDir),
	}
}

// sanitizePath validates and cleans the path to prevent directory traversal
func (fs *FileSystem) sanitizePath(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(path))

	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains parent directory reference")
	}

	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid path: absolute paths not allowed")
	}

	fullPath := filepath.Join(fs.baseDir, cleaned)

	// Verify the final path is still within baseDir
	if !strings.HasPrefix(fullPath, fs.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: outside base directory")
	}

	return fullPath, nil
}

// Write stores data as parent/name, replacing any previous object there.
func (fs *FileSystem) Write(ctx context.Context, name string, data []byte, parent string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid object name %q", name)
	}

	handle := name
	if parent != "" {
		handle = strings.TrimSuffix(filepath.ToSlash(parent), "/") + "/" + name
	}

	fullPath, err := fs.sanitizePath(handle)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	// Write then rename so a reader never sees a half-written file.
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("renaming file: %w", err)
	}

	return handle, nil
}

func (fs *FileSystem) Read(ctx context.Context, handle string) ([]byte, error) {
	fullPath, err := fs.sanitizePath(handle)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return data, nil
}

func (fs *FileSystem) Exists(ctx context.Context, handle string) bool {
	fullPath, err := fs.sanitizePath(handle)
	if err != nil {
		return false
	}

	_, err = os.Stat(fullPath)
	return err == nil
}
