// Package fileutil provides file system utilities, including the
// path-confinement and atomic-write primitives the node tool server
// relies on to keep every effect inside a configured root directory.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned by ResolveConfined when a caller-supplied
// path would resolve outside root.
var ErrPathEscape = errors.New("path escapes root directory")

// ResolveConfined resolves rel (interpreted as relative to root) and
// returns its absolute path, failing if rel is absolute, contains a ".."
// segment, or — once symlinks on the final component are resolved —
// lands outside root. Empty rel means root itself.
//
// Per spec.md §4.1 and §8, a literal ".." or absolute path is rejected
// outright regardless of where it would actually resolve.
func ResolveConfined(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", ErrPathEscape
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", ErrPathEscape
		}
	}
	clean := filepath.ToSlash(filepath.Clean(rel))

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	candidate := filepath.Join(absRoot, filepath.FromSlash(clean))

	if !isWithin(absRoot, candidate) {
		return "", ErrPathEscape
	}

	// Resolve symlinks on the final component (and any already-existing
	// ancestor) so an escaping symlink target is caught too; a path that
	// does not exist yet (e.g. a WriteFile target) has nothing to
	// resolve and is allowed through on the lexical check above.
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		return "", fmt.Errorf("resolve symlinks: %w", err)
	}
	if !isWithin(absRoot, resolved) {
		return "", ErrPathEscape
	}
	return candidate, nil
}

func isWithin(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, "../"))
}

// AtomicWrite writes content to path via a temp file in the same
// directory, fsyncs it, renames it over the target, then fsyncs the
// directory — so a crash between steps leaves either the old content or
// the new content, never a truncated file.
func AtomicWrite(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	if err := fsyncDir(dir); err != nil {
		return fmt.Errorf("fsync directory: %w", err)
	}
	return nil
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	// Directory fsync can return ENOTSUP on some platforms/filesystems;
	// that is not a failure of the write itself.
	if err := f.Sync(); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		return err
	}
	return nil
}
