package transport

import (
	"context"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/node"
)

// InProcess wraps a node.RootContext directly, for nodes co-located with
// the orchestrator (tests, single-binary deployments). ListFiles/
// ReadFile/WriteFile/SyncFiles have no native context parameter on
// RootContext since they never block on anything but local disk I/O;
// cancellation is honored cooperatively by checking ctx before the call,
// per spec.md §9's note that in-process transports need no network
// timeout machinery.
type InProcess struct {
	root *node.RootContext
}

func NewInProcess(root *node.RootContext) *InProcess {
	return &InProcess{root: root}
}

func (t *InProcess) Healthz(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (t *InProcess) GetNodeInfo(ctx context.Context) (*model.NodeInfo, error) {
	return t.root.GetNodeInfo(ctx)
}

func (t *InProcess) ListFiles(ctx context.Context, req model.ListFilesRequest) (*model.ListFilesResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.root.ListFiles(req)
}

func (t *InProcess) ReadFile(ctx context.Context, req model.ReadFileRequest) (*model.ReadFileResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.root.ReadFile(req)
}

func (t *InProcess) WriteFile(ctx context.Context, req model.WriteFileRequest) (*model.WriteFileResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.root.WriteFile(req)
}

func (t *InProcess) ExecuteCommand(ctx context.Context, req model.CommandRequest) (*model.CommandResult, error) {
	return t.root.ExecuteCommand(ctx, req)
}

func (t *InProcess) SyncFiles(ctx context.Context, req model.SyncFilesRequest) (*model.SyncReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.root.SyncFiles(req)
}
