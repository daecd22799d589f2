package catalog

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-learn/internal/curriculum"
)

// VersionHeader carries the learner's response write counter when the
// response cache is enabled. Clients poll it to detect new submissions.
const VersionHeader = "X-Responses-Version"

// Versioner reports a learner's response write counter.
type Versioner interface {
	Version(ctx context.Context, learnerID string) (int64, error)
}

// Handler exposes the catalog over HTTP.
type Handler struct {
	svc      *Service
	versions Versioner
}

// NewHandler creates catalog HTTP handlers. versions may be nil.
func NewHandler(svc *Service, versions Versioner) *Handler {
	return &Handler{svc: svc, versions: versions}
}

// Register mounts the catalog routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/classes", h.handleClasses)
	mux.HandleFunc("GET /v1/classes/{classID}", h.handleClass)
	mux.HandleFunc("GET /v1/classes/{classID}/report.xlsx", h.handleReport)
	mux.HandleFunc("GET /v1/modules/{moduleID}/progress", h.handleModuleProgress)
}

func (h *Handler) handleClasses(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := requireLearner(w, r)
	if !ok {
		return
	}
	classes, err := h.svc.Classes(r.Context(), learnerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeVersion(w, r, learnerID)
	writeJSON(w, r, map[string]any{"classes": classes})
}

func (h *Handler) handleClass(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := requireLearner(w, r)
	if !ok {
		return
	}
	class, err := h.svc.Class(r.Context(), learnerID, r.PathValue("classID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeVersion(w, r, learnerID)
	writeJSON(w, r, class)
}

func (h *Handler) handleModuleProgress(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := requireLearner(w, r)
	if !ok {
		return
	}
	module, err := h.svc.ModuleProgress(r.Context(), learnerID, r.PathValue("moduleID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeVersion(w, r, learnerID)
	writeJSON(w, r, module)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := requireLearner(w, r)
	if !ok {
		return
	}
	classID := r.PathValue("classID")
	class, err := h.svc.Class(r.Context(), learnerID, classID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, learnerID, class); err != nil {
		slog.Error("failed to render progress report", "class_id", classID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", classID+"-progress.xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) writeVersion(w http.ResponseWriter, r *http.Request, learnerID string) {
	if h.versions == nil {
		return
	}
	v, err := h.versions.Version(r.Context(), learnerID)
	if err != nil {
		slog.Warn("failed to read response version", "learner_id", learnerID, "error", err)
		return
	}
	w.Header().Set(VersionHeader, strconv.FormatInt(v, 10))
}

func requireLearner(w http.ResponseWriter, r *http.Request) (string, bool) {
	learnerID := strings.TrimSpace(r.URL.Query().Get("learner"))
	if learnerID == "" {
		writeError(w, http.StatusBadRequest, "learner query parameter is required")
		return "", false
	}
	return learnerID, true
}

// ETag returns a strong entity tag for body.
func ETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// writeJSON writes v with an ETag and answers 304 when the client already
// holds the same representation.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	etag := ETag(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if matchesETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func matchesETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, curriculum.ErrUnknownClass),
		errors.Is(err, curriculum.ErrUnknownModule),
		errors.Is(err, curriculum.ErrUnknownSubmodule):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("catalog request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
