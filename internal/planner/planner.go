// Package planner implements the four-agent pipeline — router, security,
// execution, sync — that turns an operator's natural-language-ish intent
// plus a command into a model.ExecutionPlan, per spec.md §4.3. Each stage
// calls the active llm.Backend with a stage-tagged prompt and falls back
// to HeuristicBackend's deterministic pure functions whenever the call
// errors or its completion cannot be parsed, recording exactly which
// stages fell back on the plan itself.
//
// Grounded on the donor's pkg/llm/router.go chain-of-responsibility
// shape (try primary, fall back on failure), generalized from "pick a
// completion provider" to "run a typed planning stage with a
// deterministic fallback" — the donor has no multi-stage planning
// concept, so the stage/parse/fallback loop itself is new, built
// directly from spec.md §4.3.2's per-stage contract.
package planner

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/audit"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/registry"
	"github.com/Vasanthadithya-mundrathi/NACC/pkg/llm"
)

// Request is the operator-supplied planning input: an intent description
// (free text, fed to the model-backed stages as part of the prompt) and
// the concrete command to run if the plan allows it.
type Request struct {
	Intent                  string
	TagHints                []string
	Argv                    []string
	RequestedTimeoutSeconds int
	Parallelism             int
}

// Planner runs the four-stage pipeline against the active backend,
// falling back to the heuristic backend stage-by-stage on failure.
type Planner struct {
	switcher  *llm.Switcher
	heuristic *llm.HeuristicBackend
	registry  *registry.Registry
	auditLog  *audit.Logger
}

func New(switcher *llm.Switcher, reg *registry.Registry, auditLog *audit.Logger) *Planner {
	return &Planner{switcher: switcher, heuristic: llm.NewHeuristicBackend(), registry: reg, auditLog: auditLog}
}

// Plan runs router, security, and execution in sequence, short-circuiting
// with a Deny plan (and exactly one audit record) the moment the security
// stage denies, per spec.md §4.3.2.
func (p *Planner) Plan(ctx context.Context, req Request) (model.ExecutionPlan, error) {
	var plan model.ExecutionPlan

	candidates := p.candidates()

	selected, routerReason, routerFallback, err := p.routerStage(ctx, req, candidates)
	if err != nil {
		return plan, err
	}
	plan.SelectedNodeIDs = selected
	plan.RouterReason = routerReason
	plan.RouterFallback = routerFallback
	plan.Parallelism = req.Parallelism
	if plan.Parallelism <= 0 {
		plan.Parallelism = len(selected)
	}

	allow, secReason, secFallback, err := p.securityStage(ctx, req, selected)
	if err != nil {
		return plan, err
	}
	plan.SecurityVerdict = model.SecurityVerdict{Allow: allow, Reason: secReason}
	plan.SecurityFallback = secFallback

	if !allow {
		if p.auditLog != nil {
			p.auditLog.Record(audit.Record{
				Actor:   "planner",
				Action:  model.ActionAgentProbe,
				Target:  strings.Join(selected, ","),
				Success: false,
				Message: "security stage denied: " + secReason,
			})
		}
		return plan, nil
	}

	timeout, env, hints, execFallback, err := p.executionStage(ctx, req)
	if err != nil {
		return plan, err
	}
	plan.ExecProfile = model.ExecProfile{TimeoutSeconds: timeout, EnvOverrides: env, SandboxHints: hints}
	plan.ExecFallback = execFallback

	if p.auditLog != nil {
		p.auditLog.Record(audit.Record{
			Actor:   "planner",
			Action:  model.ActionAgentProbe,
			Target:  strings.Join(selected, ","),
			Success: true,
			Message: "plan approved: " + routerReason,
		})
	}
	return plan, nil
}

// PlanSync runs only the sync stage, used by /sync to decide a strategy
// when the caller did not pin one explicitly.
func (p *Planner) PlanSync(ctx context.Context) (model.SyncStrategy, bool, error) {
	strategy, fallback, err := p.syncStage(ctx)
	return strategy, fallback, err
}

func (p *Planner) candidates() []llm.NodeCandidate {
	snapshots := p.registry.Healthy()
	out := make([]llm.NodeCandidate, 0, len(snapshots))
	for _, s := range snapshots {
		cpu, mem := 0.0, 0.0
		if s.State.Info != nil {
			cpu, mem = s.State.Info.CPUPercent, s.State.Info.MemoryPercent
		}
		out = append(out, llm.NodeCandidate{
			NodeID:        s.Definition.NodeID,
			Tags:          s.Definition.Tags,
			CPUPercent:    cpu,
			MemoryPercent: mem,
		})
	}
	return out
}

type routerCompletion struct {
	SelectedNodeIDs []string `json:"selected_node_ids"`
	RouterReason    string   `json:"router_reason"`
}

func (p *Planner) routerStage(ctx context.Context, req Request, candidates []llm.NodeCandidate) ([]string, string, bool, error) {
	candidateJSON, _ := json.Marshal(candidates)
	cx := map[string]string{
		"stage":       "router",
		"candidates":  string(candidateJSON),
		"tag_hints":   strings.Join(req.TagHints, ","),
		"parallelism": strconv.Itoa(req.Parallelism),
	}
	prompt := "Select the nodes best suited to run: " + req.Intent

	if active := p.switcher.Active(); active != nil && active.Kind() != llm.KindHeuristic {
		if out, err := active.Complete(ctx, prompt, cx); err == nil {
			var rc routerCompletion
			if json.Unmarshal([]byte(out), &rc) == nil && len(rc.SelectedNodeIDs) > 0 && subsetOfCandidates(rc.SelectedNodeIDs, candidates) {
				return rc.SelectedNodeIDs, rc.RouterReason, false, nil
			}
		}
	}

	k := req.Parallelism
	selected, reason := llm.ScoreRouter(candidates, req.TagHints, k)
	return selected, reason, true, nil
}

// subsetOfCandidates reports whether every id in selected names a node
// that was in the healthy snapshot the prompt was built from. A router
// completion naming an unhealthy or nonexistent node is treated as
// malformed rather than dispatched to, per spec.md §3/§8's invariant that
// every selected node was healthy in the snapshot the planner used.
func subsetOfCandidates(selected []string, candidates []llm.NodeCandidate) bool {
	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[c.NodeID] = struct{}{}
	}
	for _, id := range selected {
		if _, ok := known[id]; !ok {
			return false
		}
	}
	return true
}

type securityCompletion struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

func (p *Planner) securityStage(ctx context.Context, req Request, selected []string) (bool, string, bool, error) {
	argv0 := ""
	if len(req.Argv) > 0 {
		argv0 = req.Argv[0]
	}
	allowlists := p.allowlistsFor(selected)
	allowJSON, _ := json.Marshal(allowlists)
	cx := map[string]string{
		"stage":      "security",
		"argv0":      argv0,
		"allowlists": string(allowJSON),
	}
	prompt := "Decide whether to allow running: " + strings.Join(req.Argv, " ")

	if active := p.switcher.Active(); active != nil && active.Kind() != llm.KindHeuristic {
		if out, err := active.Complete(ctx, prompt, cx); err == nil {
			var sc securityCompletion
			if json.Unmarshal([]byte(out), &sc) == nil && sc.Reason != "" {
				return sc.Allow, sc.Reason, false, nil
			}
		}
	}

	allow, reason := llm.DecideSecurity(argv0, allowlists)
	return allow, reason, true, nil
}

func (p *Planner) allowlistsFor(nodeIDs []string) map[string][]string {
	out := make(map[string][]string, len(nodeIDs))
	for _, id := range nodeIDs {
		def, _, _, ok := p.registry.Get(id)
		if ok {
			out[id] = def.AllowedCommands
		}
	}
	return out
}

type executionCompletion struct {
	TimeoutS     int               `json:"timeout_s"`
	EnvOverrides map[string]string `json:"env_overrides"`
	SandboxHints []string          `json:"sandbox_hints"`
}

func (p *Planner) executionStage(ctx context.Context, req Request) (int, map[string]string, []string, bool, error) {
	cx := map[string]string{
		"stage":                     "execution",
		"requested_timeout_seconds": strconv.Itoa(req.RequestedTimeoutSeconds),
	}
	prompt := "Produce an execution profile for: " + strings.Join(req.Argv, " ")

	if active := p.switcher.Active(); active != nil && active.Kind() != llm.KindHeuristic {
		if out, err := active.Complete(ctx, prompt, cx); err == nil {
			var ec executionCompletion
			if json.Unmarshal([]byte(out), &ec) == nil && ec.TimeoutS > 0 {
				return ec.TimeoutS, ec.EnvOverrides, ec.SandboxHints, false, nil
			}
		}
	}

	timeout, env, hints := llm.ExecProfileFallback(req.RequestedTimeoutSeconds)
	return timeout, env, hints, true, nil
}

type syncCompletion struct {
	Strategy string `json:"strategy"`
}

func (p *Planner) syncStage(ctx context.Context) (model.SyncStrategy, bool, error) {
	cx := map[string]string{"stage": "sync"}

	if active := p.switcher.Active(); active != nil && active.Kind() != llm.KindHeuristic {
		if out, err := active.Complete(ctx, "Choose a sync strategy", cx); err == nil {
			var sc syncCompletion
			if json.Unmarshal([]byte(out), &sc) == nil && sc.Strategy != "" {
				return model.SyncStrategy(sc.Strategy), false, nil
			}
		}
	}

	return model.SyncStrategy(llm.SyncStrategyFallback()), true, nil
}
