// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/steego/Sample-F-Tfs-Reporting-Tool/internal/adapters/server/common"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter with timeline tools and optional snapshot tools.
func NewHandler(cfg Config, timeline common.TimelineReader, snapshots common.SnapshotService) (*Handler, error) {
	if timeline == nil {
		return nil, fmt.Errorf("timeline service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerTimelineTools(mcpSrv, timeline)
	registerSnapshotTools(mcpSrv, snapshots)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "timeline"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerTimelineTools registers the read-only timeline tools.
func registerTimelineTools(srv *mcpserver.MCPServer, timeline common.TimelineReader) {
	srv.AddTool(
		mcp.NewTool(
			"timeline.overview",
			mcp.WithDescription("Return the current iteration, iteration calendar, roster, and every feature status row."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			overview, err := timeline.Overview(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(overview)
			if err != nil {
				return nil, fmt.Errorf("encode overview result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"timeline.list_features",
			mcp.WithDescription("List feature status rows sorted by title."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			overview, err := timeline.Overview(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"run_id":   overview.RunID,
				"features": overview.Features,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_features result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"timeline.feature_detail",
			mcp.WithDescription("Return one feature's summary, hours grid, current-iteration weeks, and prior iterations."),
			mcp.WithString("feature_id", mcp.Required(), mcp.Description("Feature work item id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			featureID, err := req.RequireString("feature_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			detail, err := timeline.FeatureDetail(ctx, featureID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(detail)
			if err != nil {
				return nil, fmt.Errorf("encode feature_detail result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"timeline.report",
			mcp.WithDescription("Render one markdown report for the current run."),
			mcp.WithString("kind", mcp.Required(), mcp.Description("Report kind"), mcp.Enum(common.SupportedReportKinds()...)),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			kind, err := req.RequireString("kind")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			doc, err := timeline.Report(ctx, kind)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return mcp.NewToolResultText(doc.Markdown), nil
		},
	)
}

// registerSnapshotTools registers snapshot export when storage is available.
func registerSnapshotTools(srv *mcpserver.MCPServer, snapshots common.SnapshotService) {
	if snapshots == nil {
		return
	}
	srv.AddTool(
		mcp.NewTool(
			"timeline.export_snapshot",
			mcp.WithDescription("Return the stored work-item snapshot."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			snap, err := snapshots.ExportSnapshot(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(snap)
			if err != nil {
				return nil, fmt.Errorf("encode export_snapshot result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrSnapshotUnavailable):
		return mcp.NewToolResultError("not_implemented: " + err.Error())
	case errors.Is(err, common.ErrTimelineUnavailable):
		return mcp.NewToolResultError("timeline_unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
