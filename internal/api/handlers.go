package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/audit"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/dispatch"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
	"github.com/Vasanthadithya-mundrathi/NACC/internal/planner"
	"github.com/Vasanthadithya-mundrathi/NACC/pkg/llm"
)

// HealthzResponse is the response for /healthz.
type HealthzResponse struct {
	Status     string `json:"status"`
	NodeCount  int    `json:"node_count"`
	HealthyCount int  `json:"healthy_node_count"`
}

// ErrorResponse is the standard error envelope, matching the node tool
// server's errorEnvelope shape so clients parse both APIs the same way.
type ErrorResponse struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// NodeResponse is one row of GET /nodes / GET /nodes/{id}.
type NodeResponse struct {
	Definition model.NodeDefinition    `json:"definition"`
	State      model.NodeRuntimeState `json:"state"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	all := s.registry.List()
	healthy := s.registry.Healthy()
	writeJSON(w, http.StatusOK, HealthzResponse{Status: "ok", NodeCount: len(all), HealthyCount: len(healthy)})
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	snapshots := s.registry.List()
	out := make([]NodeResponse, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, NodeResponse{Definition: snap.Definition, State: snap.State})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	def, _, state, ok := s.registry.Get(nodeID)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrFileNotFound, "node not registered: "+nodeID)
		return
	}
	writeJSON(w, http.StatusOK, NodeResponse{Definition: def, State: state})
}

// node-scoped file proxy routes: decode the orchestrator-level request,
// forward it through the node's transport, and relay the typed error
// envelope unchanged so a caller sees the same taxonomy whether it hit
// the node directly or through the orchestrator.

func (s *Server) handleNodeListFiles(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	_, t, _, ok := s.registry.Get(nodeID)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrFileNotFound, "node not registered: "+nodeID)
		return
	}
	var req model.ListFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	resp, err := t.ListFiles(r.Context(), req)
	if err != nil {
		s.recordAudit(r, model.ActionListFiles, nodeID, false, err.Error())
		writeDomainError(w, err)
		return
	}
	s.recordAudit(r, model.ActionListFiles, nodeID, true, "")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNodeReadFile(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	_, t, _, ok := s.registry.Get(nodeID)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrFileNotFound, "node not registered: "+nodeID)
		return
	}
	var req model.ReadFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	resp, err := t.ReadFile(r.Context(), req)
	if err != nil {
		s.recordAudit(r, model.ActionReadFile, nodeID, false, err.Error())
		writeDomainError(w, err)
		return
	}
	s.recordAudit(r, model.ActionReadFile, nodeID, true, "")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNodeWriteFile(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	_, t, _, ok := s.registry.Get(nodeID)
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrFileNotFound, "node not registered: "+nodeID)
		return
	}
	var req model.WriteFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	resp, err := t.WriteFile(r.Context(), req)
	if err != nil {
		s.recordAudit(r, model.ActionWriteFile, nodeID, false, err.Error())
		writeDomainError(w, err)
		return
	}
	s.recordAudit(r, model.ActionWriteFile, nodeID, true, "")
	writeJSON(w, http.StatusOK, resp)
}

// ExecuteCommandRequest is the POST /commands/execute body: a planning
// intent plus the command itself, per spec.md §4.3/§6.
type ExecuteCommandRequest struct {
	Intent                  string            `json:"intent"`
	TagHints                []string          `json:"tag_hints,omitempty"`
	Argv                    []string          `json:"argv"`
	Cwd                     string            `json:"cwd,omitempty"`
	Env                     map[string]string `json:"env,omitempty"`
	RequestedTimeoutSeconds int               `json:"requested_timeout_seconds,omitempty"`
	Parallelism             int               `json:"parallelism,omitempty"`
}

// ExecuteCommandResponse carries the plan that was run plus every node's
// individual result, in selected-node order.
type ExecuteCommandResponse struct {
	Plan    model.ExecutionPlan   `json:"plan"`
	Results []NodeCommandOutcome `json:"results"`
}

type NodeCommandOutcome struct {
	NodeID string               `json:"node_id"`
	Result *model.CommandResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var req ExecuteCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	if len(req.Argv) == 0 {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "argv must not be empty")
		return
	}

	plan, err := s.planner.Plan(r.Context(), planner.Request{
		Intent:                  req.Intent,
		TagHints:                req.TagHints,
		Argv:                    req.Argv,
		RequestedTimeoutSeconds: req.RequestedTimeoutSeconds,
		Parallelism:             req.Parallelism,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrInternal, err.Error())
		return
	}
	if !plan.SecurityVerdict.Allow {
		writeJSON(w, http.StatusForbidden, ExecuteCommandResponse{Plan: plan})
		return
	}

	cmdReq := model.CommandRequest{Argv: req.Argv, Cwd: req.Cwd, Env: req.Env, TimeoutSeconds: plan.ExecProfile.TimeoutSeconds}
	results := dispatch.ExecuteCommand(r.Context(), s.registry, plan, cmdReq)

	out := ExecuteCommandResponse{Plan: plan, Results: make([]NodeCommandOutcome, len(results))}
	for i, res := range results {
		outcome := NodeCommandOutcome{NodeID: res.NodeID, Result: res.Result}
		if res.Err != nil {
			outcome.Error = res.Err.Error()
		}
		out.Results[i] = outcome
		s.recordAudit(r, model.ActionExecuteCommand, res.NodeID, res.Err == nil, fingerprint(req.Argv))
	}
	writeJSON(w, http.StatusOK, out)
}

// SyncRequest is the POST /sync body.
type SyncRequest struct {
	SourceNodeID  string             `json:"source_node_id"`
	SourcePath    string             `json:"source_path"`
	TargetNodeIDs []string           `json:"target_node_ids"`
	Strategy      model.SyncStrategy `json:"strategy,omitempty"`
}

type SyncResponse struct {
	Source  model.SyncReport       `json:"source"`
	Targets []NodeSyncOutcome      `json:"targets"`
	Strategy model.SyncStrategy    `json:"strategy"`
	StrategyFallback bool          `json:"strategy_fallback,omitempty"`
}

type NodeSyncOutcome struct {
	NodeID string            `json:"node_id"`
	Report *model.SyncReport `json:"report,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	if req.SourceNodeID == "" || len(req.TargetNodeIDs) == 0 {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "source_node_id and target_node_ids are required")
		return
	}

	strategy := req.Strategy
	fallback := false
	if strategy == "" {
		var err error
		strategy, fallback, err = s.planner.PlanSync(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, model.ErrInternal, err.Error())
			return
		}
	}

	sourceReport, targetResults, err := dispatch.SyncToTargets(r.Context(), s.registry, model.SyncRequest{
		SourceNodeID:  req.SourceNodeID,
		SourcePath:    req.SourcePath,
		TargetNodeIDs: req.TargetNodeIDs,
		Strategy:      strategy,
	})
	if err != nil {
		s.recordAudit(r, model.ActionSyncPath, req.SourceNodeID, false, err.Error())
		writeDomainError(w, err)
		return
	}

	out := SyncResponse{Source: *sourceReport, Strategy: strategy, StrategyFallback: fallback, Targets: make([]NodeSyncOutcome, len(targetResults))}
	for i, res := range targetResults {
		outcome := NodeSyncOutcome{NodeID: res.NodeID, Report: res.Report}
		if res.Err != nil {
			outcome.Error = res.Err.Error()
		}
		out.Targets[i] = outcome
		s.recordAudit(r, model.ActionSyncPath, res.NodeID, res.Err == nil, req.SourcePath)
	}
	writeJSON(w, http.StatusOK, out)
}

// AgentsProbeRequest is the POST /agents/probe body: run the planning
// pipeline (router, security and, when the command is allowed, execution
// stages) without dispatching anything, so an operator can preview a plan
// before committing to it.
type AgentsProbeRequest struct {
	Intent   string   `json:"intent"`
	TagHints []string `json:"tag_hints,omitempty"`
	Argv     []string `json:"argv"`
	Parallelism int   `json:"parallelism,omitempty"`
}

func (s *Server) handleAgentsProbe(w http.ResponseWriter, r *http.Request) {
	var req AgentsProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	plan, err := s.planner.Plan(r.Context(), planner.Request{
		Intent:      req.Intent,
		TagHints:    req.TagHints,
		Argv:        req.Argv,
		Parallelism: req.Parallelism,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.ErrInternal, err.Error())
		return
	}
	s.recordAudit(r, model.ActionAgentProbe, strings.Join(plan.SelectedNodeIDs, ","), plan.SecurityVerdict.Allow, plan.SecurityVerdict.Reason)
	writeJSON(w, http.StatusOK, plan)
}

// BackendResponse describes one registered LLM backend variant.
type BackendResponse struct {
	Kind   string `json:"kind"`
	Active bool   `json:"active"`
}

func (s *Server) handleListBackends(w http.ResponseWriter, r *http.Request) {
	active := s.switcher.Active()
	var activeKind llm.Kind
	if active != nil {
		activeKind = active.Kind()
	}
	variants := s.switcher.Variants()
	out := make([]BackendResponse, 0, len(variants))
	for kind := range variants {
		out = append(out, BackendResponse{Kind: string(kind), Active: kind == activeKind})
	}
	writeJSON(w, http.StatusOK, out)
}

// SwitchBackendRequest is the POST /backends/switch body: the kind of an
// already-registered backend to make active.
type SwitchBackendRequest struct {
	Kind string `json:"kind"`
}

func (s *Server) handleSwitchBackend(w http.ResponseWriter, r *http.Request) {
	var req SwitchBackendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	candidate, ok := s.switcher.Variants()[llm.Kind(req.Kind)]
	if !ok {
		writeError(w, http.StatusNotFound, model.ErrFileNotFound, "backend not registered: "+req.Kind)
		return
	}
	if err := s.switcher.SwitchBackend(r.Context(), candidate); err != nil {
		s.recordAudit(r, model.ActionAgentProbe, req.Kind, false, "switch_backend probe failed: "+err.Error())
		writeError(w, http.StatusBadGateway, model.ErrInternal, err.Error())
		return
	}
	s.recordAudit(r, model.ActionAgentProbe, req.Kind, true, "switched active backend")
	writeJSON(w, http.StatusOK, map[string]string{"active": req.Kind})
}

// handleAuditStream serves a Server-Sent-Events feed of live audit
// events, per spec.md §12's supplemented streaming endpoint. Grounded on
// the donor's pkg/monitor.HTTPMonitor.handleEvents SSE loop, narrowed to
// subscribe against internal/audit.Broadcaster instead of pkg/monitor's
// generic Event type.
func (s *Server) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, model.ErrInternal, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) recordAudit(r *http.Request, action model.AuditAction, target string, success bool, message string) {
	if s.auditLog == nil {
		return
	}
	s.auditLog.Record(audit.Record{
		Actor:   actorFor(r),
		Action:  action,
		Target:  target,
		Success: success,
		Message: message,
	})
}

func actorFor(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return r.RemoteAddr
}

func fingerprint(argv []string) string {
	sum := sha256.Sum256([]byte(strings.Join(argv, "\x00")))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind model.ErrorKind, message string) {
	var env ErrorResponse
	env.Error.Kind = string(kind)
	env.Error.Message = message
	writeJSON(w, status, env)
}

func writeDomainError(w http.ResponseWriter, err error) {
	if derr, ok := err.(*model.Error); ok {
		writeError(w, statusForKind(derr.Kind), derr.Kind, derr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, model.ErrInternal, err.Error())
}

func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.ErrPathEscape, model.ErrFileNotFound, model.ErrIsDirectory, model.ErrAlreadyExists,
		model.ErrEncodingError, model.ErrTooLarge, model.ErrCommandNotAllowed:
		return http.StatusBadRequest
	case model.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
