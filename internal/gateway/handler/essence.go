package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"codeessence/internal/depgraph"
	"codeessence/internal/essence"
	"codeessence/internal/health"
	"codeessence/internal/publish"
	"codeessence/internal/types"
	"codeessence/internal/workspace"
)

// Analyzer is the operation set served over HTTP.
type Analyzer interface {
	SummarizeRepository(ctx context.Context, repoURL string, g types.Granularity) (*essence.SummaryResponse, error)
	CheckHealth(ctx context.Context, repoURL string) (*health.Report, error)
	ListStructure(ctx context.Context, repoURL string) ([]string, error)
	BuildDependencyGraph(ctx context.Context, repoURL string) (*depgraph.Graph, error)
	PublishSummary(ctx context.Context, repoURL, branch string) (*publish.Result, error)
	SummarizeSnippet(ctx context.Context, code, language string) (string, error)
	SummarizeFile(ctx context.Context, repoURL, fileName string) (string, error)
}

type EssenceHandler struct {
	svc Analyzer
	log *slog.Logger
}

func NewEssenceHandler(svc Analyzer, logger *slog.Logger) *EssenceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EssenceHandler{svc: svc, log: logger}
}

// Register mounts every route on mux.
func (h *EssenceHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/summarize_repo", h.HandleSummarizeRepo)
	mux.HandleFunc("/health_check", h.HandleHealthCheck)
	mux.HandleFunc("/get_file_structure", h.HandleFileStructure)
	mux.HandleFunc("/dependency_graph", h.HandleDependencyGraph)
	mux.HandleFunc("/push_summary", h.HandlePushSummary)
	mux.HandleFunc("/summarize_snippet", h.HandleSummarizeSnippet)
	mux.HandleFunc("/summarize_file", h.HandleSummarizeFile)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
}

type repoRequest struct {
	RepoURL  string `json:"repo_url"`
	Level    string `json:"level"`
	Branch   string `json:"branch"`
	FileName string `json:"file_name"`
}

func (h *EssenceHandler) HandleSummarizeRepo(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeRepo(w, r)
	if !ok {
		return
	}
	g, err := types.ParseGranularity(in.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, "level must be 'repo', 'folder', or 'file'")
		return
	}
	out, err := h.svc.SummarizeRepository(r.Context(), in.RepoURL, g)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *EssenceHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeRepo(w, r)
	if !ok {
		return
	}
	out, err := h.svc.CheckHealth(r.Context(), in.RepoURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *EssenceHandler) HandleFileStructure(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeRepo(w, r)
	if !ok {
		return
	}
	files, err := h.svc.ListStructure(r.Context(), in.RepoURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *EssenceHandler) HandleDependencyGraph(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeRepo(w, r)
	if !ok {
		return
	}
	g, err := h.svc.BuildDependencyGraph(r.Context(), in.RepoURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *EssenceHandler) HandlePushSummary(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeRepo(w, r)
	if !ok {
		return
	}
	res, err := h.svc.PublishSummary(r.Context(), in.RepoURL, in.Branch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Summary pushed successfully",
		"branch":    res.Branch,
		"committed": res.Committed,
	})
}

func (h *EssenceHandler) HandleSummarizeSnippet(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code     string `json:"code"`
		Language string `json:"language"`
	}
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	s, err := h.svc.SummarizeSnippet(r.Context(), in.Code, in.Language)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": s})
}

func (h *EssenceHandler) HandleSummarizeFile(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeRepo(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(in.FileName) == "" {
		writeError(w, http.StatusBadRequest, "repo_url and file_name are required")
		return
	}
	s, err := h.svc.SummarizeFile(r.Context(), in.RepoURL, in.FileName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": s})
}

func (h *EssenceHandler) decodeRepo(w http.ResponseWriter, r *http.Request) (repoRequest, bool) {
	var in repoRequest
	if !decode(w, r, &in) {
		return in, false
	}
	in.RepoURL = strings.TrimSpace(in.RepoURL)
	if in.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repo_url is required")
		return in, false
	}
	return in, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// fail maps operation errors onto status codes.
func (h *EssenceHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fetchErr *workspace.FetchError
		pushErr  *publish.PushConflictError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, essence.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, essence.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.As(err, &fetchErr), errors.As(err, &pushErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	h.log.Warn("handler: request failed", "path", r.URL.Path, "status", status, "error", err)
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
