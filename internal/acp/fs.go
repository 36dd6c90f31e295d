package acp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for file requests outside the allowed root.
var ErrOutsideRoot = errors.New("path outside working directory")

// FileSystem serves the agent's file read and write requests.
type FileSystem interface {
	// ReadTextFile reads a text file. line (1-based) and limit, when set,
	// select a range of lines.
	ReadTextFile(path string, line, limit *int) (string, error)
	// WriteTextFile writes a text file, creating parent directories.
	WriteTextFile(path, content string) error
}

// OSFileSystem serves file requests from the local disk. When Root is
// set, only paths under Root are served.
type OSFileSystem struct {
	Root string
}

var _ FileSystem = (*OSFileSystem)(nil)

func (fs *OSFileSystem) check(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path must be absolute: %s", path)
	}
	clean := filepath.Clean(path)
	if fs.Root == "" {
		return clean, nil
	}
	rel, err := filepath.Rel(filepath.Clean(fs.Root), clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return clean, nil
}

// ReadTextFile implements FileSystem.
func (fs *OSFileSystem) ReadTextFile(path string, line, limit *int) (string, error) {
	path, err := fs.check(path)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return selectLines(string(b), line, limit), nil
}

// WriteTextFile implements FileSystem.
func (fs *OSFileSystem) WriteTextFile(path, content string) error {
	path, err := fs.check(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func selectLines(content string, line, limit *int) string {
	if line == nil && limit == nil {
		return content
	}
	lines := strings.Split(content, "\n")
	start := 0
	if line != nil && *line > 0 {
		start = min(*line-1, len(lines))
	}
	end := len(lines)
	if limit != nil && *limit > 0 && start+*limit < end {
		end = start + *limit
	}
	return strings.Join(lines[start:end], "\n")
}
