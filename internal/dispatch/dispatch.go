// Package dispatch fans an ExecutionPlan out to its selected nodes in
// bounded parallel, preserving result order, per spec.md §4.3.3. Grounded
// directly on that section (the donor has no multi-target fan-out
// concept at all); golang.org/x/sync/errgroup replaces the unbounded
// goroutine-per-task style elsewhere in the pack.
package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/registry"
)

// MaxConcurrency bounds how many nodes are called at once per plan.
const MaxConcurrency = 16

// CommandResult pairs a node ID with its outcome, since a per-node
// failure must surface as data rather than aborting the whole plan.
type CommandResult struct {
	NodeID string
	Result *model.CommandResult
	Err    error
}

// ExecuteCommand fans plan's selected nodes out to run req concurrently,
// bounded by MaxConcurrency, under a whole-plan timeout of
// plan.ExecProfile.TimeoutSeconds + 10s. The returned slice is always in
// the same order as plan.SelectedNodeIDs, regardless of completion order.
func ExecuteCommand(ctx context.Context, reg *registry.Registry, plan model.ExecutionPlan, req model.CommandRequest) []CommandResult {
	budget := time.Duration(plan.ExecProfile.TimeoutSeconds+10) * time.Second
	planCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	results := make([]CommandResult, len(plan.SelectedNodeIDs))
	g, gctx := errgroup.WithContext(planCtx)
	g.SetLimit(MaxConcurrency)

	for i, nodeID := range plan.SelectedNodeIDs {
		i, nodeID := i, nodeID
		results[i] = CommandResult{NodeID: nodeID}
		g.Go(func() error {
			_, t, _, ok := reg.Get(nodeID)
			if !ok || t == nil {
				results[i].Err = model.NewError(model.ErrFileNotFound, "node not registered: "+nodeID)
				return nil
			}
			res, err := t.ExecuteCommand(gctx, req)
			results[i].Result = res
			results[i].Err = err
			return nil // per-node errors never abort the group
		})
	}
	_ = g.Wait()

	return results
}

// SyncReportResult pairs a node ID with its SyncFiles outcome.
type SyncReportResult struct {
	NodeID string
	Report *model.SyncReport
	Err    error
}

// SyncToTargets reads sourcePath from the source node once, then pairs
// that single ReadFile with one WriteFile-equivalent SyncFiles call per
// target, per spec.md §4.1's cross-node transfer orchestration note.
func SyncToTargets(ctx context.Context, reg *registry.Registry, req model.SyncRequest) (*model.SyncReport, []SyncReportResult, error) {
	_, srcTransport, _, ok := reg.Get(req.SourceNodeID)
	if !ok || srcTransport == nil {
		return nil, nil, model.NewError(model.ErrFileNotFound, "source node not registered: "+req.SourceNodeID)
	}

	listing, err := srcTransport.ListFiles(ctx, model.ListFilesRequest{Path: req.SourcePath, Recursive: true, WithHash: true})
	if err != nil {
		return nil, nil, err
	}

	files := make([]model.SyncSourceFile, 0, len(listing.Entries))
	for _, entry := range listing.Entries {
		if entry.IsDir {
			continue
		}
		read, err := srcTransport.ReadFile(ctx, model.ReadFileRequest{Path: entry.RelativePath, Encoding: "binary"})
		if err != nil {
			continue
		}
		files = append(files, model.SyncSourceFile{RelativePath: entry.RelativePath, Content: read.Content, Encoding: read.Encoding, SHA256: read.SHA256})
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = model.SyncMirror
	}

	results := make([]SyncReportResult, len(req.TargetNodeIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrency)

	for i, targetID := range req.TargetNodeIDs {
		i, targetID := i, targetID
		results[i] = SyncReportResult{NodeID: targetID}
		g.Go(func() error {
			_, t, _, ok := reg.Get(targetID)
			if !ok || t == nil {
				results[i].Err = model.NewError(model.ErrFileNotFound, "target node not registered: "+targetID)
				return nil
			}
			report, err := t.SyncFiles(gctx, model.SyncFilesRequest{SourcePath: req.SourcePath, Strategy: strategy, Files: files})
			results[i].Report = report
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	sourceReport := &model.SyncReport{NodeID: req.SourceNodeID, FilesUnchanged: len(files)}
	return sourceReport, results, nil
}
