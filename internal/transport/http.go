package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// HTTP is the real hub-and-spoke wire transport: plain JSON-over-HTTP
// against a node's internal/node.Server, mirroring the donor's pattern of
// a thin client wrapping http.Client with a per-call context deadline.
type HTTP struct {
	baseURL     string
	bearerToken string
	client      *http.Client
}

func NewHTTP(baseURL, bearerToken string) *HTTP {
	return &HTTP{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		client:      &http.Client{Timeout: 65 * time.Second},
	}
}

func (t *HTTP) Healthz(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return t.do(ctx, http.MethodGet, "/healthz", nil, &out)
}

func (t *HTTP) GetNodeInfo(ctx context.Context) (*model.NodeInfo, error) {
	var out model.NodeInfo
	if err := t.do(ctx, http.MethodGet, "/node", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTP) ListFiles(ctx context.Context, req model.ListFilesRequest) (*model.ListFilesResponse, error) {
	var out model.ListFilesResponse
	if err := t.do(ctx, http.MethodPost, "/tools/list-files", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTP) ReadFile(ctx context.Context, req model.ReadFileRequest) (*model.ReadFileResponse, error) {
	var out model.ReadFileResponse
	if err := t.do(ctx, http.MethodPost, "/tools/read-file", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTP) WriteFile(ctx context.Context, req model.WriteFileRequest) (*model.WriteFileResponse, error) {
	var out model.WriteFileResponse
	if err := t.do(ctx, http.MethodPost, "/tools/write-file", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTP) ExecuteCommand(ctx context.Context, req model.CommandRequest) (*model.CommandResult, error) {
	var out model.CommandResult
	if err := t.do(ctx, http.MethodPost, "/tools/execute-command", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTP) SyncFiles(ctx context.Context, req model.SyncFilesRequest) (*model.SyncReport, error) {
	var out model.SyncReport
	if err := t.do(ctx, http.MethodPost, "/tools/sync-files", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTP) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.bearerToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return model.NewError(model.ErrTimeout, "node request canceled: "+err.Error())
		}
		return model.NewError(model.ErrInternal, "node request failed: "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env struct {
			Error struct {
				Kind    model.ErrorKind `json:"kind"`
				Message string          `json:"message"`
			} `json:"error"`
		}
		if decErr := json.NewDecoder(resp.Body).Decode(&env); decErr == nil && env.Error.Kind != "" {
			return model.NewError(env.Error.Kind, env.Error.Message)
		}
		return model.NewError(model.ErrInternal, fmt.Sprintf("node returned HTTP %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
