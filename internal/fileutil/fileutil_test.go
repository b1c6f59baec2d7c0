package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfined_RejectsAbsolutePath(t *testing.T) {
	_, err := ResolveConfined(t.TempDir(), "/etc/passwd")
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestResolveConfined_RejectsDotDotSegment(t *testing.T) {
	root := t.TempDir()
	_, err := ResolveConfined(root, "../escape.txt")
	assert.ErrorIs(t, err, ErrPathEscape)

	_, err = ResolveConfined(root, "sub/../../escape.txt")
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestResolveConfined_AllowsNestedPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))

	resolved, err := ResolveConfined(root, "sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "file.txt"), resolved)
}

func TestResolveConfined_EmptyMeansRoot(t *testing.T) {
	root := t.TempDir()
	resolved, err := ResolveConfined(root, "")
	require.NoError(t, err)
	absRoot, _ := filepath.Abs(root)
	assert.Equal(t, absRoot, resolved)
}

func TestResolveConfined_RejectsEscapingSymlink(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("symlink creation may be restricted in CI sandboxes")
	}
	root := t.TempDir()
	outside := t.TempDir()
	outsideFile := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(outsideFile, []byte("hi"), 0644))

	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	_, err := ResolveConfined(root, "escape/secret.txt")
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestAtomicWrite_CreatesFileWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, AtomicWrite(path, []byte("hello"), 0644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestAtomicWrite_OverwritesExistingFileCleanly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("old content that is longer"), 0644))

	require.NoError(t, AtomicWrite(path, []byte("new"), 0644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}
