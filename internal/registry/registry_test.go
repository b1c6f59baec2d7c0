package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// fakeTransport lets tests control Healthz's outcome without a real node.
type fakeTransport struct {
	mu        sync.Mutex
	healthy   bool
	callCount int
}

func (f *fakeTransport) setHealthy(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = v
}

func (f *fakeTransport) Healthz(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	if f.healthy {
		return nil
	}
	return errors.New("node unreachable")
}

func (f *fakeTransport) GetNodeInfo(ctx context.Context) (*model.NodeInfo, error) {
	return &model.NodeInfo{NodeID: "fake"}, nil
}
func (f *fakeTransport) ListFiles(ctx context.Context, req model.ListFilesRequest) (*model.ListFilesResponse, error) {
	return &model.ListFilesResponse{}, nil
}
func (f *fakeTransport) ReadFile(ctx context.Context, req model.ReadFileRequest) (*model.ReadFileResponse, error) {
	return &model.ReadFileResponse{}, nil
}
func (f *fakeTransport) WriteFile(ctx context.Context, req model.WriteFileRequest) (*model.WriteFileResponse, error) {
	return &model.WriteFileResponse{}, nil
}
func (f *fakeTransport) ExecuteCommand(ctx context.Context, req model.CommandRequest) (*model.CommandResult, error) {
	return &model.CommandResult{}, nil
}
func (f *fakeTransport) SyncFiles(ctx context.Context, req model.SyncFilesRequest) (*model.SyncReport, error) {
	return &model.SyncReport{}, nil
}

func TestRegistry_AddRejectsDuplicate(t *testing.T) {
	reg := New(50*time.Millisecond, nil)
	defer reg.Stop()

	ft := &fakeTransport{healthy: true}
	require.NoError(t, reg.Add(model.NodeDefinition{NodeID: "n1"}, ft))
	err := reg.Add(model.NodeDefinition{NodeID: "n1"}, ft)
	assert.Error(t, err)
}

func TestRegistry_HealthTransitions(t *testing.T) {
	reg := New(20*time.Millisecond, nil)
	defer reg.Stop()

	ft := &fakeTransport{healthy: true}
	require.NoError(t, reg.Add(model.NodeDefinition{NodeID: "n1"}, ft))

	require.Eventually(t, func() bool {
		_, _, state, _ := reg.Get("n1")
		return state.Healthy
	}, time.Second, 10*time.Millisecond)

	ft.setHealthy(false)
	require.Eventually(t, func() bool {
		_, _, state, _ := reg.Get("n1")
		return !state.Healthy
	}, time.Second, 10*time.Millisecond)

	healthy := reg.Healthy()
	assert.Empty(t, healthy)
}

func TestRegistry_ListAndGetUnknown(t *testing.T) {
	reg := New(time.Second, nil)
	defer reg.Stop()

	_, _, _, ok := reg.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, reg.List())
}

func TestRegistry_Remove(t *testing.T) {
	reg := New(time.Second, nil)
	defer reg.Stop()

	ft := &fakeTransport{healthy: true}
	require.NoError(t, reg.Add(model.NodeDefinition{NodeID: "n1"}, ft))
	reg.Remove("n1")

	_, _, _, ok := reg.Get("n1")
	assert.False(t, ok)
}
