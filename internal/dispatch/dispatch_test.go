package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/registry"
)

type stubTransport struct {
	execDelay time.Duration
	execErr   error
	files     []model.FileEntry
	fileData  map[string]string
	syncErr   error
}

func (s *stubTransport) Healthz(ctx context.Context) error { return nil }
func (s *stubTransport) GetNodeInfo(ctx context.Context) (*model.NodeInfo, error) {
	return &model.NodeInfo{}, nil
}
func (s *stubTransport) ListFiles(ctx context.Context, req model.ListFilesRequest) (*model.ListFilesResponse, error) {
	return &model.ListFilesResponse{Entries: s.files}, nil
}
func (s *stubTransport) ReadFile(ctx context.Context, req model.ReadFileRequest) (*model.ReadFileResponse, error) {
	return &model.ReadFileResponse{Content: s.fileData[req.Path]}, nil
}
func (s *stubTransport) WriteFile(ctx context.Context, req model.WriteFileRequest) (*model.WriteFileResponse, error) {
	return &model.WriteFileResponse{}, nil
}
func (s *stubTransport) ExecuteCommand(ctx context.Context, req model.CommandRequest) (*model.CommandResult, error) {
	if s.execDelay > 0 {
		select {
		case <-time.After(s.execDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.execErr != nil {
		return nil, s.execErr
	}
	return &model.CommandResult{ExitCode: 0}, nil
}
func (s *stubTransport) SyncFiles(ctx context.Context, req model.SyncFilesRequest) (*model.SyncReport, error) {
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	return &model.SyncReport{FilesChanged: len(req.Files)}, nil
}

func newTestRegistry(t *testing.T, nodes map[string]*stubTransport) *registry.Registry {
	t.Helper()
	reg := registry.New(time.Hour, nil)
	t.Cleanup(reg.Stop)
	for id, tr := range nodes {
		require.NoError(t, reg.Add(model.NodeDefinition{NodeID: id}, tr))
	}
	return reg
}

func TestExecuteCommand_PreservesOrderRegardlessOfCompletionOrder(t *testing.T) {
	reg := newTestRegistry(t, map[string]*stubTransport{
		"slow": {execDelay: 60 * time.Millisecond},
		"fast": {execDelay: 0},
	})

	plan := model.ExecutionPlan{
		SelectedNodeIDs: []string{"slow", "fast"},
		ExecProfile:     model.ExecProfile{TimeoutSeconds: 5},
	}
	results := ExecuteCommand(context.Background(), reg, plan, model.CommandRequest{Argv: []string{"echo"}})

	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].NodeID)
	assert.Equal(t, "fast", results[1].NodeID)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestExecuteCommand_PerNodeFailureDoesNotAbortOthers(t *testing.T) {
	reg := newTestRegistry(t, map[string]*stubTransport{
		"bad":  {execErr: errors.New("boom")},
		"good": {},
	})

	plan := model.ExecutionPlan{
		SelectedNodeIDs: []string{"bad", "good"},
		ExecProfile:     model.ExecProfile{TimeoutSeconds: 5},
	}
	results := ExecuteCommand(context.Background(), reg, plan, model.CommandRequest{Argv: []string{"echo"}})

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestExecuteCommand_UnregisteredNodeYieldsError(t *testing.T) {
	reg := newTestRegistry(t, map[string]*stubTransport{"known": {}})

	plan := model.ExecutionPlan{
		SelectedNodeIDs: []string{"unknown"},
		ExecProfile:     model.ExecProfile{TimeoutSeconds: 5},
	}
	results := ExecuteCommand(context.Background(), reg, plan, model.CommandRequest{Argv: []string{"echo"}})

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestSyncToTargets_FansOutToEveryTarget(t *testing.T) {
	source := &stubTransport{
		files:    []model.FileEntry{{RelativePath: "a.txt"}, {RelativePath: "dir", IsDir: true}},
		fileData: map[string]string{"a.txt": "hello"},
	}
	reg := newTestRegistry(t, map[string]*stubTransport{
		"src": source,
		"t1":  {},
		"t2":  {},
	})

	sourceReport, results, err := SyncToTargets(context.Background(), reg, model.SyncRequest{
		SourceNodeID:  "src",
		SourcePath:    "/",
		TargetNodeIDs: []string{"t1", "t2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "src", sourceReport.NodeID)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
		require.NotNil(t, r.Report)
		assert.Equal(t, 1, r.Report.FilesChanged)
	}
}

func TestSyncToTargets_UnknownSourceErrors(t *testing.T) {
	reg := newTestRegistry(t, map[string]*stubTransport{"t1": {}})
	_, _, err := SyncToTargets(context.Background(), reg, model.SyncRequest{
		SourceNodeID:  "missing",
		TargetNodeIDs: []string{"t1"},
	})
	assert.Error(t, err)
}
