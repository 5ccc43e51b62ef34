// Package output writes the aggregated changelog file.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Writer persists the rendered run.
type Writer interface {
	Write(content string) error
}

// File overwrites a single file on every run.
type File struct {
	path string
}

// NewFile returns a File writer for path.
func NewFile(path string) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("output path is required")
	}
	return &File{path: path}, nil
}

// Path returns the destination path.
func (f *File) Path() string { return f.path }

// Write replaces the file atomically. A trailing newline is added when missing.
func (f *File) Write(content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	// #nosec G302 -- the output file is meant to be shared.
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}
