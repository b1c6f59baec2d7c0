package node

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// Server wires RootContext's tool operations onto the Node HTTP API of
// spec.md §6. Grounded on the donor's internal/api/router.go middleware
// stack (RequestID, RealIP, Logger, Recoverer, Timeout), trimmed of CORS
// and the project-index routes that have no NACC equivalent.
type Server struct {
	root    *RootContext
	router  chi.Router
	bearer  string // optional shared-secret auth, mirrors the donor's apiKeyAuth
}

func NewServer(root *RootContext, bearerToken string) *Server {
	s := &Server{root: root, bearer: bearerToken}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/node", s.handleGetNodeInfo)

	r.Group(func(r chi.Router) {
		if s.bearer != "" {
			r.Use(s.bearerAuth)
		}
		r.Post("/tools/list-files", s.handleListFiles)
		r.Post("/tools/read-file", s.handleReadFile)
		r.Post("/tools/write-file", s.handleWriteFile)
		r.Post("/tools/execute-command", s.handleExecuteCommand)
		r.Post("/tools/sync-files", s.handleSyncFiles)
		r.Post("/tools/get-node-info", s.handleGetNodeInfo)
	})

	return r
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.bearer {
			writeError(w, http.StatusUnauthorized, model.ErrInternal, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "node_id": s.root.NodeID})
}

func (s *Server) handleGetNodeInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.root.GetNodeInfo(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	var req model.ListFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	resp, err := s.root.ListFiles(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	var req model.ReadFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	resp, err := s.root.ReadFile(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req model.WriteFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	resp, err := s.root.WriteFile(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var req model.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	resp, err := s.root.ExecuteCommand(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSyncFiles(w http.ResponseWriter, r *http.Request) {
	var req model.SyncFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrInternal, "invalid JSON body")
		return
	}
	resp, err := s.root.SyncFiles(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON and writeError mirror the donor's internal/api/handlers.go
// helpers of the same name and shape.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorEnvelope struct {
	Error struct {
		Kind    model.ErrorKind `json:"kind"`
		Message string          `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, kind model.ErrorKind, message string) {
	var env errorEnvelope
	env.Error.Kind = kind
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
