// Package transport implements the two ways the Orchestrator Core reaches
// a node's tool operations: in-process (direct call into internal/node,
// used when the orchestrator and node share a binary/test harness) and
// HTTP (the real hub-and-spoke wire path). Both satisfy the same
// Transport interface so the registry and dispatch layers never branch
// on which one they're holding.
package transport

import (
	"context"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// Transport is the node-facing operation set the orchestrator dispatches
// through. Constructed once per NodeDefinition and reused for the life of
// the process, per spec.md §3.
type Transport interface {
	Healthz(ctx context.Context) error
	GetNodeInfo(ctx context.Context) (*model.NodeInfo, error)
	ListFiles(ctx context.Context, req model.ListFilesRequest) (*model.ListFilesResponse, error)
	ReadFile(ctx context.Context, req model.ReadFileRequest) (*model.ReadFileResponse, error)
	WriteFile(ctx context.Context, req model.WriteFileRequest) (*model.WriteFileResponse, error)
	ExecuteCommand(ctx context.Context, req model.CommandRequest) (*model.CommandResult, error)
	SyncFiles(ctx context.Context, req model.SyncFilesRequest) (*model.SyncReport, error)
}
