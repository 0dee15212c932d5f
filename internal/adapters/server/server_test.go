package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/adapters/server/common"
)

// stubTimelineReader returns fixed timeline views.
type stubTimelineReader struct{}

// Overview returns one fixed overview.
func (stubTimelineReader) Overview(context.Context) (common.TimelineOverview, error) {
	return common.TimelineOverview{RunID: "run-3", CurrentWeek: 2}, nil
}

// FeatureDetail always reports a missing feature.
func (stubTimelineReader) FeatureDetail(context.Context, string) (common.FeatureDetail, error) {
	return common.FeatureDetail{}, common.ErrNotFound
}

// Report returns one fixed document.
func (stubTimelineReader) Report(_ context.Context, kind string) (common.ReportDocument, error) {
	return common.ReportDocument{Kind: kind, Markdown: "# Project Summary\n"}, nil
}

// TestNewHandlerRoutes verifies health, API, and MCP endpoints are mounted.
func TestNewHandlerRoutes(t *testing.T) {
	handler, cfg, err := NewHandler(Config{}, Dependencies{Timeline: stubTimelineReader{}})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" || cfg.ServerName != "timeline" {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("/healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"run_id":"run-3"`) {
		t.Fatalf("/readyz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/timeline", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/timeline status = %d", rec.Code)
	}
	var overview common.TimelineOverview
	if err := json.NewDecoder(rec.Body).Decode(&overview); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if overview.RunID != "run-3" {
		t.Fatalf("run_id = %q, want run-3", overview.RunID)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/features/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing feature status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("snapshot without store status = %d, want %d", rec.Code, http.StatusNotImplemented)
	}
}

// failingTimelineReader reports an unavailable timeline for every call.
type failingTimelineReader struct{ stubTimelineReader }

// Overview always fails.
func (failingTimelineReader) Overview(context.Context) (common.TimelineOverview, error) {
	return common.TimelineOverview{}, common.ErrTimelineUnavailable
}

// recordingLogger captures request log events.
type recordingLogger struct {
	infos []string
	warns []string
}

func (l *recordingLogger) Info(msg string, _ ...any) { l.infos = append(l.infos, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any) { l.warns = append(l.warns, msg) }

// TestReadinessAndRequestLog verifies readiness follows timeline builds and requests are logged.
func TestReadinessAndRequestLog(t *testing.T) {
	logger := &recordingLogger{}
	handler, _, err := NewHandler(Config{}, Dependencies{Timeline: failingTimelineReader{}, Logger: logger})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"unavailable"`) {
		t.Fatalf("/readyz = %d %q", rec.Code, rec.Body.String())
	}
	if len(logger.warns) != 1 || logger.warns[0] != "http request failed" {
		t.Fatalf("warn events = %#v", logger.warns)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d", rec.Code)
	}
	if len(logger.infos) != 1 || logger.infos[0] != "http request" {
		t.Fatalf("info events = %#v", logger.infos)
	}
}

// TestNewHandlerValidation verifies dependency and endpoint checks.
func TestNewHandlerValidation(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("NewHandler() error = nil, want missing timeline error")
	}
	_, _, err := NewHandler(Config{APIEndpoint: "/x/", MCPEndpoint: "x"}, Dependencies{Timeline: stubTimelineReader{}})
	if err == nil {
		t.Fatal("NewHandler() error = nil, want endpoint collision error")
	}
}

// TestNormalizeEndpoint verifies endpoint canonicalization.
func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"":           "/fallback",
		"/":          "/fallback",
		"api":        "/api",
		" /api/v2/ ": "/api/v2",
		"//mcp//":    "/mcp",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in, "/fallback"); got != want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestRunStopsOnCancel verifies graceful shutdown once the context is canceled.
func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, Dependencies{Timeline: stubTimelineReader{}})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
