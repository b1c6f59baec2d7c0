package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/node"
)

func TestInProcess_WriteThenReadRoundTrips(t *testing.T) {
	root := node.NewRootContext("n1", t.TempDir(), nil, nil, nil)
	tr := NewInProcess(root)

	_, err := tr.WriteFile(context.Background(), model.WriteFileRequest{Path: "a.txt", Content: "hello", Overwrite: true})
	require.NoError(t, err)

	resp, err := tr.ReadFile(context.Background(), model.ReadFileRequest{Path: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
}

func TestInProcess_HonorsCanceledContext(t *testing.T) {
	root := node.NewRootContext("n1", t.TempDir(), nil, nil, nil)
	tr := NewInProcess(root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.ListFiles(ctx, model.ListFilesRequest{Path: "."})
	assert.Error(t, err)
}

func TestInProcess_Healthz(t *testing.T) {
	root := node.NewRootContext("n1", t.TempDir(), nil, nil, nil)
	tr := NewInProcess(root)
	assert.NoError(t, tr.Healthz(context.Background()))
}
