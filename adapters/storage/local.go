// Package storage provides ObjectStore implementations. The default is
// a local filesystem store that "uploads" by moving finished archive
// parts into a serving directory and returns a path-shaped reference;
// production deployments put an S3-compatible implementation behind
// the same port.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/artpar/fetchvault/ports"
)

// Local stores objects under a base directory.
type Local struct {
	baseDir string
	baseURL string // prefix for returned references, e.g. "/downloads"
}

// NewLocal creates a local object store rooted at baseDir.
func NewLocal(baseDir, baseURL string) *Local {
	if baseURL == "" {
		baseURL = "/downloads"
	}
	return &Local{baseDir: baseDir, baseURL: baseURL}
}

// Put copies the file at localPath under key and returns a reference.
func (l *Local) Put(ctx context.Context, key, localPath string) (string, error) {
	dst := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	// Rename is the cheap path; fall back to copy across filesystems.
	if err := os.Rename(localPath, dst); err != nil {
		if err := copyFile(localPath, dst); err != nil {
			return "", fmt.Errorf("store object %s: %w", key, err)
		}
	}

	return l.baseURL + "/" + key, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Ensure interface compliance.
var _ ports.ObjectStore = (*Local)(nil)
