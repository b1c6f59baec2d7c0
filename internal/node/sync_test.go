package node

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

func TestSyncFiles_CreatesMissingFiles(t *testing.T) {
	rc := NewRootContext("n1", t.TempDir(), nil, nil, nil)

	report, err := rc.SyncFiles(model.SyncFilesRequest{
		SourcePath: ".",
		Strategy:   model.SyncMirror,
		Files:      []model.SyncSourceFile{{RelativePath: "a.txt", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesChanged)

	got, err := os.ReadFile(filepath.Join(rc.RootDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestSyncFiles_MirrorDeletesExtraneousFiles(t *testing.T) {
	rc := NewRootContext("n1", t.TempDir(), nil, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(rc.RootDir, "stale.txt"), []byte("old"), 0644))

	report, err := rc.SyncFiles(model.SyncFilesRequest{
		SourcePath: ".",
		Strategy:   model.SyncMirror,
		Files:      []model.SyncSourceFile{{RelativePath: "a.txt", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesDeleted)
	assert.NoFileExists(t, filepath.Join(rc.RootDir, "stale.txt"))
}

func TestSyncFiles_AppendNeverOverwritesExisting(t *testing.T) {
	rc := NewRootContext("n1", t.TempDir(), nil, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(rc.RootDir, "a.txt"), []byte("original"), 0644))

	report, err := rc.SyncFiles(model.SyncFilesRequest{
		SourcePath: ".",
		Strategy:   model.SyncAppend,
		Files:      []model.SyncSourceFile{{RelativePath: "a.txt", Content: "new"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesUnchanged)

	got, err := os.ReadFile(filepath.Join(rc.RootDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestSyncFiles_DryRunTouchesNothing(t *testing.T) {
	rc := NewRootContext("n1", t.TempDir(), nil, nil, nil)

	report, err := rc.SyncFiles(model.SyncFilesRequest{
		SourcePath: ".",
		Strategy:   model.SyncDryRun,
		Files:      []model.SyncSourceFile{{RelativePath: "a.txt", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesChanged)
	assert.NoFileExists(t, filepath.Join(rc.RootDir, "a.txt"))
}

func TestSyncFiles_UnchangedWhenHashMatches(t *testing.T) {
	rc := NewRootContext("n1", t.TempDir(), nil, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(rc.RootDir, "a.txt"), []byte("hello"), 0644))

	// sha256("hello")
	const shaHello = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	report, err := rc.SyncFiles(model.SyncFilesRequest{
		SourcePath: ".",
		Strategy:   model.SyncMirror,
		Files:      []model.SyncSourceFile{{RelativePath: "a.txt", Content: "hello", SHA256: shaHello}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesUnchanged)
	assert.Equal(t, 0, report.FilesChanged)
}

// TestSyncFiles_BinaryEncodingIsDecodedBeforeWrite exercises the real
// shape SyncToTargets feeds in: content read with Encoding "binary" (thus
// base64, per fsops.go's ReadFile) must land on disk as the original
// bytes, and a second Mirror pass against the same source must be a
// no-op (spec's round-trip/idempotence law), not a forever-"changed" loop.
func TestSyncFiles_BinaryEncodingIsDecodedBeforeWrite(t *testing.T) {
	rc := NewRootContext("n1", t.TempDir(), nil, nil, nil)

	const shaHello = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	src := model.SyncSourceFile{
		RelativePath: "a.bin",
		Content:      base64.StdEncoding.EncodeToString([]byte("hello")),
		Encoding:     "binary",
		SHA256:       shaHello,
	}

	report, err := rc.SyncFiles(model.SyncFilesRequest{
		SourcePath: ".",
		Strategy:   model.SyncMirror,
		Files:      []model.SyncSourceFile{src},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesChanged)

	got, err := os.ReadFile(filepath.Join(rc.RootDir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	second, err := rc.SyncFiles(model.SyncFilesRequest{
		SourcePath: ".",
		Strategy:   model.SyncMirror,
		Files:      []model.SyncSourceFile{src},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, second.FilesUnchanged)
	assert.Equal(t, 0, second.FilesChanged)
}
