// Package assetstore implements core.AssetStore on the local filesystem and
// on S3-compatible object storage.
//
// Both backends write in two phases: files are staged under
// .staging/{stagingID}/ and moved to their final relative path on Promote.
// Promotion never overwrites an existing file.
package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// StagingDir is the directory (or key prefix) that holds staged files.
const StagingDir = ".staging"

// ErrExists is returned by Promote when a final path is already taken.
var ErrExists = errors.New("asset already exists")

// Local stores assets under a root directory.
type Local struct {
	root string
}

// NewLocal creates root if needed.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("asset root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, StagingDir), 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &Local{root: root}, nil
}

// Root returns the base directory.
func (l *Local) Root() string {
	return l.root
}

// Stage writes data to the staging area for stagingID.
func (l *Local) Stage(ctx context.Context, stagingID, relPath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := l.stagingDir(stagingID)
	if err != nil {
		return err
	}
	rel, err := cleanRel(relPath)
	if err != nil {
		return err
	}

	dst := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// Promote moves every staged file to its final path and removes the
// staging area. Files are hard-linked into place so an existing file is
// never replaced; a collision returns ErrExists and leaves the remaining
// files staged.
func (l *Local) Promote(ctx context.Context, stagingID string) error {
	dir, err := l.stagingDir(stagingID)
	if err != nil {
		return err
	}

	err = filepath.WalkDir(dir, func(src string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, src)
		if err != nil {
			return err
		}
		dst := filepath.Join(l.root, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create asset dir: %w", err)
		}
		if err := os.Link(src, dst); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("%s: %w", filepath.ToSlash(rel), ErrExists)
			}
			return fmt.Errorf("promote %s: %w", filepath.ToSlash(rel), err)
		}
		return os.Remove(src)
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	return os.RemoveAll(dir)
}

// Discard removes the staging area for stagingID.
func (l *Local) Discard(_ context.Context, stagingID string) error {
	dir, err := l.stagingDir(stagingID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// Exists reports whether relPath is present in final storage.
func (l *Local) Exists(_ context.Context, relPath string) (bool, error) {
	rel, err := cleanRel(relPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(l.root, filepath.FromSlash(rel)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (l *Local) stagingDir(stagingID string) (string, error) {
	if err := validStagingID(stagingID); err != nil {
		return "", err
	}
	return filepath.Join(l.root, StagingDir, stagingID), nil
}

func validStagingID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid staging id %q", id)
	}
	return nil
}

// cleanRel rejects absolute paths and anything that escapes the root.
func cleanRel(rel string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(rel, `\`, "/"))
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid asset path %q", rel)
	}
	if clean == StagingDir || strings.HasPrefix(clean, StagingDir+"/") {
		return "", fmt.Errorf("invalid asset path %q", rel)
	}
	return clean, nil
}
