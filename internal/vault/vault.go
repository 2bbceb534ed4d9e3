package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Storage is the host-owned vault boundary the archival pipeline writes
// through. Failures propagate to the pipeline as persistence failures.
type Storage interface {
	CreateFile(path, content string) error
	// CreateDirectory is a no-op when the directory already exists.
	CreateDirectory(path string) error
	ListFiles() ([]string, error)
}

// FS implements Storage on a directory tree rooted at the vault path.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("vault root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create vault root: %w", err)
	}
	return &FS{root: abs}, nil
}

func (v *FS) Root() string { return v.root }

func (v *FS) CreateFile(path, content string) error {
	full, err := v.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (v *FS) CreateDirectory(path string) error {
	full, err := v.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// ListFiles returns all file paths in the vault, slash-separated and relative
// to the root.
func (v *FS) ListFiles() ([]string, error) {
	var out []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(v.root, p)
		if relErr != nil {
			return relErr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list vault files: %w", err)
	}
	return out, nil
}

// resolve rejects paths that escape the vault root.
func (v *FS) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("vault path is empty")
	}
	full := filepath.Join(v.root, filepath.FromSlash(path))
	if full != v.root && !strings.HasPrefix(full, v.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes vault root: %s", path)
	}
	return full, nil
}
