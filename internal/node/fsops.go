package node

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/fileutil"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// ListFiles walks rc.RootDir/req.Path (optionally recursively), never
// following a symlink that would leave RootDir, and returns entries in
// deterministic lexicographic order by relative path.
func (rc *RootContext) ListFiles(req model.ListFilesRequest) (*model.ListFilesResponse, error) {
	base, err := fileutil.ResolveConfined(rc.RootDir, req.Path)
	if err != nil {
		return nil, model.NewError(model.ErrPathEscape, err.Error())
	}
	info, err := os.Lstat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.NewError(model.ErrFileNotFound, "path does not exist")
		}
		return nil, model.NewError(model.ErrInternal, err.Error())
	}
	if !info.IsDir() {
		return nil, model.NewError(model.ErrIsDirectory, "path is not a directory")
	}

	var entries []model.FileEntry
	walkErr := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return err
		}
		if p == base {
			return nil
		}
		// In non-recursive mode a subdirectory is listed but not entered.
		var after error
		if d.IsDir() && !req.Recursive {
			after = filepath.SkipDir
		}

		// Reject symlinks whose target escapes root; relative entries
		// are addressed by rc.RootDir so ResolveConfined re-validates.
		rel, relErr := filepath.Rel(rc.RootDir, p)
		if relErr != nil {
			return nil
		}
		if _, err := fileutil.ResolveConfined(rc.RootDir, rel); err != nil {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if req.Filter != "" {
			matched, _ := filepath.Match(req.Filter, d.Name())
			if !matched {
				if d.IsDir() {
					return after // still descend when recursive, only the listing is filtered
				}
				return nil
			}
		}

		fi, statErr := d.Info()
		if statErr != nil {
			return after
		}

		entry := model.FileEntry{
			RelativePath: filepath.ToSlash(rel),
			IsDir:        d.IsDir(),
			SizeBytes:    0,
			ModifiedAt:   fi.ModTime(),
		}
		if !d.IsDir() {
			entry.SizeBytes = fi.Size()
			if req.WithHash {
				sum, err := hashFile(p)
				if err == nil {
					entry.SHA256 = sum
				}
			}
		}
		entries = append(entries, entry)
		return after
	})
	if walkErr != nil {
		return nil, model.NewError(model.ErrInternal, walkErr.Error())
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })
	return &model.ListFilesResponse{Entries: entries}, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadFile reads req.Path relative to RootDir, refusing files above
// MaxFileSize and returning the SHA-256 of the exact bytes read.
func (rc *RootContext) ReadFile(req model.ReadFileRequest) (*model.ReadFileResponse, error) {
	abs, err := fileutil.ResolveConfined(rc.RootDir, req.Path)
	if err != nil {
		return nil, model.NewError(model.ErrPathEscape, err.Error())
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.NewError(model.ErrFileNotFound, "file does not exist")
		}
		return nil, model.NewError(model.ErrInternal, err.Error())
	}
	if info.IsDir() {
		return nil, model.NewError(model.ErrIsDirectory, "path is a directory")
	}
	if info.Size() > MaxFileSize {
		return nil, model.NewError(model.ErrTooLarge, "file exceeds 16 MiB ceiling")
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, model.NewError(model.ErrInternal, err.Error())
	}
	sum := sha256.Sum256(data)

	encoding := req.Encoding
	if encoding == "" {
		encoding = "utf-8"
	}
	var content string
	switch encoding {
	case "utf-8":
		content = string(data)
	case "binary":
		content = base64.StdEncoding.EncodeToString(data)
	default:
		return nil, model.NewError(model.ErrEncodingError, "unsupported encoding: "+encoding)
	}

	return &model.ReadFileResponse{
		Content:  content,
		Encoding: encoding,
		SHA256:   hex.EncodeToString(sum[:]),
		Size:     info.Size(),
	}, nil
}

// WriteFile atomically writes req.Content to req.Path, backing up the
// prior content to "<path>.bak" when overwriting, per spec.md §4.1's
// exact write-temp/fsync/rename/fsync-dir sequencing.
func (rc *RootContext) WriteFile(req model.WriteFileRequest) (*model.WriteFileResponse, error) {
	abs, err := fileutil.ResolveConfined(rc.RootDir, req.Path)
	if err != nil {
		return nil, model.NewError(model.ErrPathEscape, err.Error())
	}

	var payload []byte
	switch req.Encoding {
	case "", "utf-8":
		payload = []byte(req.Content)
	case "binary":
		payload, err = base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return nil, model.NewError(model.ErrEncodingError, "invalid base64 content")
		}
	default:
		return nil, model.NewError(model.ErrEncodingError, "unsupported encoding: "+req.Encoding)
	}
	if len(payload) > MaxFileSize {
		return nil, model.NewError(model.ErrTooLarge, "content exceeds 16 MiB ceiling")
	}

	existing, statErr := os.Stat(abs)
	exists := statErr == nil
	if exists && existing.IsDir() {
		return nil, model.NewError(model.ErrIsDirectory, "path is a directory")
	}
	if exists && !req.Overwrite {
		return nil, model.NewError(model.ErrAlreadyExists, "file exists and overwrite=false")
	}

	var backupPath string
	if exists {
		backupPath = abs + ".bak"
		prior, err := os.ReadFile(abs)
		if err != nil {
			return nil, model.NewError(model.ErrInternal, "read prior content for backup: "+err.Error())
		}
		if err := fileutil.AtomicWrite(backupPath, prior, 0o644); err != nil {
			return nil, model.NewError(model.ErrInternal, "write backup: "+err.Error())
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, model.NewError(model.ErrInternal, "create parent directory: "+err.Error())
	}
	if err := fileutil.AtomicWrite(abs, payload, 0o644); err != nil {
		return nil, model.NewError(model.ErrInternal, "atomic write: "+err.Error())
	}

	sum := sha256.Sum256(payload)
	resp := &model.WriteFileResponse{
		SHA256: hex.EncodeToString(sum[:]),
		Size:   int64(len(payload)),
	}
	if backupPath != "" {
		rel, _ := filepath.Rel(rc.RootDir, backupPath)
		resp.BackupPath = filepath.ToSlash(rel)
	}
	return resp, nil
}
