package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// LastSequence scans path for the highest sequence number it contains,
// returning 0 if the file does not exist or is empty. Called once at
// startup so a fresh Logger continues the gap-free sequence rather than
// restarting it at zero.
func LastSequence(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var last uint64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		var ev model.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err == nil && ev.Sequence > last {
			last = ev.Sequence
		}
	}
	return last, scanner.Err()
}

// Rotate moves the current audit log aside into a zstd-compressed
// segment and truncates path to empty, ready for the next Logger to
// reopen. Its only caller is RotateIfOversize at startup; the
// orchestrator's HTTP API has no rotate route. It must not run mid-run,
// since rotation races with the single in-flight writer would otherwise
// reorder or drop events.
func Rotate(path string) (segmentPath string, err error) {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open audit log: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat audit log: %w", err)
	}
	if info.Size() == 0 {
		return "", nil
	}

	segmentPath = fmt.Sprintf("%s.%s.zst", path, time.Now().UTC().Format("20060102T150405Z"))
	dst, err := os.Create(segmentPath)
	if err != nil {
		return "", fmt.Errorf("create segment: %w", err)
	}
	defer dst.Close()

	enc, err := zstd.NewWriter(dst)
	if err != nil {
		return "", fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.ReadFrom(src); err != nil {
		enc.Close()
		return "", fmt.Errorf("compress segment: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("finalize segment: %w", err)
	}

	if err := os.Truncate(path, 0); err != nil {
		return "", fmt.Errorf("truncate audit log: %w", err)
	}
	return segmentPath, nil
}

// RotateIfOversize rotates path if it exceeds retentionMB, intended to be
// called once at startup before NewLogger opens the file.
func RotateIfOversize(path string, retentionMB int) (segmentPath string, err error) {
	if retentionMB <= 0 {
		return "", nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return "", nil
	}
	if info.Size() < int64(retentionMB)*1024*1024 {
		return "", nil
	}
	return Rotate(path)
}
