package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HeuristicBackend is the deterministic, non-model backend required by
// spec.md §4.2: a pure function of (prompt, context) used both as an
// operator-selectable active backend and as the planner's fallback when
// a model-backed backend fails or returns something unparseable.
//
// Its Complete method dispatches on context["stage"] and produces the
// same JSON shape a well-behaved model-backed completion would, so the
// planner's response parser needs no special case for "did the fallback
// run".
type HeuristicBackend struct{}

func NewHeuristicBackend() *HeuristicBackend { return &HeuristicBackend{} }

func (h *HeuristicBackend) Kind() Kind { return KindHeuristic }

func (h *HeuristicBackend) Probe(ctx context.Context) error { return nil }

func (h *HeuristicBackend) Complete(ctx context.Context, prompt string, cx map[string]string) (string, error) {
	switch cx["stage"] {
	case "router":
		return h.completeRouter(cx)
	case "security":
		return h.completeSecurity(cx)
	case "execution":
		return h.completeExecution(cx)
	case "sync":
		return h.completeSync(cx)
	default:
		// A generic probe/free-form request: echo a short deterministic
		// acknowledgement derived from the prompt length, never empty.
		return fmt.Sprintf("heuristic: received %d-character prompt", len(prompt)), nil
	}
}

// NodeCandidate is the router stage's view of one eligible node.
type NodeCandidate struct {
	NodeID        string
	Tags          []string
	CPUPercent    float64
	MemoryPercent float64
}

// ScoreRouter implements the router stage's fallback: score by tag
// overlap (primary) then by inverse load (tie-break), pick the top k.
// Deterministic given identical inputs (ties broken by NodeID).
func ScoreRouter(candidates []NodeCandidate, tagHints []string, k int) (selected []string, reason string) {
	if k <= 0 {
		k = 1
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	type scored struct {
		id       string
		overlap  int
		invLoad  float64
	}
	hints := make(map[string]bool, len(tagHints))
	for _, t := range tagHints {
		hints[strings.ToLower(strings.TrimSpace(t))] = true
	}
	rows := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		overlap := 0
		for _, t := range c.Tags {
			if hints[strings.ToLower(t)] {
				overlap++
			}
		}
		load := (c.CPUPercent + c.MemoryPercent) / 2
		rows = append(rows, scored{id: c.NodeID, overlap: overlap, invLoad: -load})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].overlap != rows[j].overlap {
			return rows[i].overlap > rows[j].overlap
		}
		if rows[i].invLoad != rows[j].invLoad {
			return rows[i].invLoad > rows[j].invLoad
		}
		return rows[i].id < rows[j].id
	})
	for i := 0; i < k; i++ {
		selected = append(selected, rows[i].id)
	}
	reason = fmt.Sprintf("heuristic: tag-overlap then inverse-load scoring over %d candidates, top %d selected", len(candidates), k)
	return selected, reason
}

func (h *HeuristicBackend) completeRouter(cx map[string]string) (string, error) {
	var candidates []NodeCandidate
	if raw, ok := cx["candidates"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
			return "", NewError(ErrMalformed, "heuristic router: decode candidates", err)
		}
	}
	var tagHints []string
	if raw := cx["tag_hints"]; raw != "" {
		tagHints = strings.Split(raw, ",")
	}
	k, _ := strconv.Atoi(cx["parallelism"])
	selected, reason := ScoreRouter(candidates, tagHints, k)
	out := struct {
		SelectedNodeIDs []string `json:"selected_node_ids"`
		RouterReason    string   `json:"router_reason"`
	}{selected, reason}
	b, _ := json.Marshal(out)
	return string(b), nil
}

// DecideSecurity implements the security stage's fallback: deny unless
// argv0 is present in the intersection of every selected node's allow-list.
func DecideSecurity(argv0 string, allowlists map[string][]string) (allow bool, reason string) {
	if argv0 == "" {
		return false, "heuristic: empty command"
	}
	if len(allowlists) == 0 {
		return false, "heuristic: no candidate nodes to check an allow-list against"
	}
	for nodeID, list := range allowlists {
		found := false
		for _, cmd := range list {
			if cmd == argv0 {
				found = true
				break
			}
		}
		if !found {
			return false, fmt.Sprintf("heuristic: %q not in allow-list of node %q", argv0, nodeID)
		}
	}
	return true, "heuristic: command present in every selected node's allow-list"
}

func (h *HeuristicBackend) completeSecurity(cx map[string]string) (string, error) {
	argv0 := cx["argv0"]
	allowlists := map[string][]string{}
	if raw := cx["allowlists"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &allowlists); err != nil {
			return "", NewError(ErrMalformed, "heuristic security: decode allowlists", err)
		}
	}
	allow, reason := DecideSecurity(argv0, allowlists)
	out := struct {
		Allow  bool   `json:"allow"`
		Reason string `json:"reason"`
	}{allow, reason}
	b, _ := json.Marshal(out)
	return string(b), nil
}

// ExecProfileFallback implements the execution stage's fallback: the
// caller-supplied timeout (or 30s default), clamped to 600s, empty env,
// no sandbox hints.
func ExecProfileFallback(requestedTimeoutSeconds int) (timeoutSeconds int, envOverrides map[string]string, hints []string) {
	t := requestedTimeoutSeconds
	if t <= 0 {
		t = 30
	}
	if t > 600 {
		t = 600
	}
	return t, map[string]string{}, nil
}

func (h *HeuristicBackend) completeExecution(cx map[string]string) (string, error) {
	requested, _ := strconv.Atoi(cx["requested_timeout_seconds"])
	timeout, env, hints := ExecProfileFallback(requested)
	out := struct {
		TimeoutS     int               `json:"timeout_s"`
		EnvOverrides map[string]string `json:"env_overrides"`
		SandboxHints []string          `json:"sandbox_hints"`
	}{timeout, env, hints}
	b, _ := json.Marshal(out)
	return string(b), nil
}

// SyncStrategyFallback implements the sync stage's fallback: Mirror.
func SyncStrategyFallback() string { return "Mirror" }

func (h *HeuristicBackend) completeSync(cx map[string]string) (string, error) {
	out := struct {
		Strategy string `json:"strategy"`
	}{SyncStrategyFallback()}
	b, _ := json.Marshal(out)
	return string(b), nil
}
