package node

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/fileutil"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// decodeSyncContent returns src's original bytes, reversing the encoding
// ReadFile applied on the source side (fsops.go's ReadFile), so the bytes
// written to disk here hash to src.SHA256 rather than to the transport
// encoding of it.
func decodeSyncContent(src model.SyncSourceFile) ([]byte, error) {
	switch src.Encoding {
	case "", "utf-8":
		return []byte(src.Content), nil
	case "binary":
		return base64.StdEncoding.DecodeString(src.Content)
	default:
		return nil, model.NewError(model.ErrEncodingError, "unsupported sync encoding: "+src.Encoding)
	}
}

// SyncFiles applies req.Files (the source-side listing, already read by
// the orchestrator) against rc.RootDir/req.SourcePath, which on this
// node is the target-side operation spec.md §4.1 describes: "the node
// exposes only the target-side operation; cross-node transfer is
// orchestrated by the OC by pairing one ReadFile on the source with one
// WriteFile on each target." DryRun computes the report without
// touching the filesystem.
func (rc *RootContext) SyncFiles(req model.SyncFilesRequest) (*model.SyncReport, error) {
	targetRoot, err := fileutil.ResolveConfined(rc.RootDir, req.SourcePath)
	if err != nil {
		return nil, model.NewError(model.ErrPathEscape, err.Error())
	}

	report := &model.SyncReport{NodeID: rc.NodeID}
	wanted := make(map[string]model.SyncSourceFile, len(req.Files))
	for _, f := range req.Files {
		wanted[f.RelativePath] = f
	}

	targetRelBase, _ := filepath.Rel(rc.RootDir, targetRoot)
	for rel, src := range wanted {
		combinedRel := filepath.ToSlash(filepath.Join(targetRelBase, rel))
		targetPath, err := fileutil.ResolveConfined(rc.RootDir, combinedRel)
		if err != nil {
			continue // never follow a path that would escape root
		}

		existingSum, exists := "", false
		if data, err := os.ReadFile(targetPath); err == nil {
			exists = true
			sum := sha256.Sum256(data)
			existingSum = hex.EncodeToString(sum[:])
		}

		switch {
		case req.Strategy == model.SyncAppend && exists:
			report.FilesUnchanged++
			report.PerFile = append(report.PerFile, model.SyncFileDiff{RelativePath: rel, ShaBefore: existingSum, ShaAfter: existingSum, Action: "unchanged"})
			continue
		case exists && existingSum == src.SHA256:
			report.FilesUnchanged++
			report.PerFile = append(report.PerFile, model.SyncFileDiff{RelativePath: rel, ShaBefore: existingSum, ShaAfter: existingSum, Action: "unchanged"})
			continue
		}

		decoded, err := decodeSyncContent(src)
		if err != nil {
			return nil, err
		}

		action := "created"
		if exists {
			action = "updated"
		}
		report.PerFile = append(report.PerFile, model.SyncFileDiff{RelativePath: rel, ShaBefore: existingSum, ShaAfter: src.SHA256, Action: action})
		report.FilesChanged++
		report.BytesCopied += int64(len(decoded))

		if req.Strategy == model.SyncDryRun {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return nil, model.NewError(model.ErrInternal, "create parent directory: "+err.Error())
		}
		if err := fileutil.AtomicWrite(targetPath, decoded, 0o644); err != nil {
			return nil, model.NewError(model.ErrInternal, "write target file: "+err.Error())
		}
	}

	if req.Strategy == model.SyncMirror {
		removeExtraneous(targetRoot, wanted, req.Strategy == model.SyncDryRun, report)
	}

	return report, nil
}

func removeExtraneous(root string, wanted map[string]model.SyncSourceFile, dryRun bool, report *model.SyncReport) {
	_ = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if _, ok := wanted[rel]; ok {
			return nil
		}
		report.FilesDeleted++
		report.PerFile = append(report.PerFile, model.SyncFileDiff{RelativePath: rel, Action: "deleted"})
		if !dryRun {
			_ = os.Remove(p)
		}
		return nil
	})
}
