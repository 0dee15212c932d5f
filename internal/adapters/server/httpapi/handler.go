// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/adapters/server/common"
	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/app"
)

// maxRequestBodyBytes limits decoded snapshot payload size.
const maxRequestBodyBytes int64 = 32 << 20

// markdownContentType is served when a report is requested as raw markdown.
const markdownContentType = "text/markdown; charset=utf-8"

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	timeline  common.TimelineReader
	snapshots common.SnapshotService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter from a timeline reader and optional snapshot service.
func NewHandler(timeline common.TimelineReader, snapshots common.SnapshotService) *Handler {
	return &Handler{
		timeline:  timeline,
		snapshots: snapshots,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	switch {
	case path == "timeline":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleOverview(w, r)
		return
	case path == "features":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListFeatures(w, r)
		return
	case path == "snapshot":
		switch r.Method {
		case http.MethodGet:
			h.handleExportSnapshot(w, r)
		case http.MethodPut:
			h.handleImportSnapshot(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPut)
		}
		return
	case strings.HasPrefix(path, "reports/"):
		kind, ok := resolveSegment(path, "reports/", "")
		if !ok {
			writeNotFound(w)
			return
		}
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleReport(w, r, kind)
		return
	default:
		if featureID, ok := resolveSegment(path, "features/", "/grid"); ok {
			if r.Method != http.MethodGet {
				writeMethodNotAllowed(w, http.MethodGet)
				return
			}
			h.handleFeatureGrid(w, r, featureID)
			return
		}
		featureID, ok := resolveSegment(path, "features/", "")
		if !ok {
			writeNotFound(w)
			return
		}
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleFeatureDetail(w, r, featureID)
	}
}

// handleOverview serves GET `/timeline`.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimeline(w) {
		return
	}
	overview, err := h.timeline.Overview(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// handleListFeatures serves GET `/features`.
func (h *Handler) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	if !h.requireTimeline(w) {
		return
	}
	overview, err := h.timeline.Overview(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   overview.RunID,
		"as_of":    overview.AsOf,
		"features": overview.Features,
	})
}

// handleFeatureDetail serves GET `/features/{id}`.
func (h *Handler) handleFeatureDetail(w http.ResponseWriter, r *http.Request, featureID string) {
	if !h.requireTimeline(w) {
		return
	}
	detail, err := h.timeline.FeatureDetail(r.Context(), featureID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleFeatureGrid serves GET `/features/{id}/grid`.
func (h *Handler) handleFeatureGrid(w http.ResponseWriter, r *http.Request, featureID string) {
	if !h.requireTimeline(w) {
		return
	}
	detail, err := h.timeline.FeatureDetail(r.Context(), featureID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feature_id": detail.Summary.FeatureID,
		"grid":       detail.Grid,
	})
}

// handleReport serves GET `/reports/{kind}`, as JSON unless `format=markdown` is requested.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request, kind string) {
	if !h.requireTimeline(w) {
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format != "" && format != "json" && format != "markdown" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "format must be json or markdown",
		})
		return
	}
	doc, err := h.timeline.Report(r.Context(), kind)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if format == "markdown" {
		w.Header().Set("Content-Type", markdownContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, doc.Markdown)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleExportSnapshot serves GET `/snapshot`.
func (h *Handler) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.requireSnapshots(w) {
		return
	}
	snap, err := h.snapshots.ExportSnapshot(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleImportSnapshot serves PUT `/snapshot`.
func (h *Handler) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.requireSnapshots(w) {
		return
	}
	var snap app.Snapshot
	if err := decodeJSONBody(r.Context(), w, r, &snap); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.snapshots.ImportSnapshot(r.Context(), snap)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requireTimeline writes a 503 when no timeline reader is configured.
func (h *Handler) requireTimeline(w http.ResponseWriter) bool {
	if h.timeline != nil {
		return true
	}
	writeJSONError(w, http.StatusServiceUnavailable, APIError{
		Code:    "service_unavailable",
		Message: "timeline service is not configured",
	})
	return false
}

// requireSnapshots writes a 501 when no snapshot service is configured.
func (h *Handler) requireSnapshots(w http.ResponseWriter) bool {
	if h.snapshots != nil {
		return true
	}
	writeJSONError(w, http.StatusNotImplemented, APIError{
		Code:    "not_implemented",
		Message: "snapshot APIs are not available",
	})
	return false
}

// resolveSegment parses `{prefix}{id}{suffix}` and returns `{id}`.
func resolveSegment(path, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix))
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrSnapshotUnavailable):
		writeJSONError(w, http.StatusNotImplemented, APIError{
			Code:    "not_implemented",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrTimelineUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "timeline_unavailable",
			Message: err.Error(),
			Hint:    "Import a snapshot with at least one iteration covering the as-of date.",
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeNotFound writes the structured unknown-endpoint response.
func writeNotFound(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    "not_found",
		Message: "endpoint not found",
	})
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
