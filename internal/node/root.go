// Package node implements the Node Tool Server: the sandboxed,
// per-machine process that exposes ListFiles, ReadFile, WriteFile,
// ExecuteCommand, SyncFiles, and GetNodeInfo over HTTP-JSON, confined to
// a single root directory.
package node

import "time"

// MaxFileSize is the ReadFile/WriteFile size ceiling fixed by spec.md §9's
// open-question resolution: 16 MiB, refuse rather than stream.
const MaxFileSize = 16 << 20

// MaxCapturedOutput bounds ExecuteCommand's stdout/stderr buffers.
const MaxCapturedOutput = 1 << 20

// KillGracePeriod is how long ExecuteCommand waits after sending the
// terminate signal before force-killing the child.
const KillGracePeriod = 5 * time.Second

// RootContext is the explicit, constructed-once-at-startup root every
// tool handler receives, per spec.md §9's "no module-level mutable
// state" re-architecture note: root absolute path, allow-list, and
// sync-target map, instead of an implicit global.
type RootContext struct {
	NodeID          string
	RootDir         string
	AllowedCommands map[string]bool
	SyncTargets     map[string]string
	Tags            []string
}

// NewRootContext builds a RootContext from its configuration-level parts.
func NewRootContext(nodeID, rootDir string, allowedCommands []string, syncTargets map[string]string, tags []string) *RootContext {
	allow := make(map[string]bool, len(allowedCommands))
	for _, c := range allowedCommands {
		allow[c] = true
	}
	return &RootContext{
		NodeID:          nodeID,
		RootDir:         rootDir,
		AllowedCommands: allow,
		SyncTargets:     syncTargets,
		Tags:            tags,
	}
}
