package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/isdmx/challengebox/complexity"
	"github.com/isdmx/challengebox/config"
	"github.com/isdmx/challengebox/engine"
	"github.com/isdmx/challengebox/errkind"
	"github.com/isdmx/challengebox/harness"
	"github.com/isdmx/challengebox/profiler"
)

// Engine is the part of *engine.Engine the tools call.
type Engine interface {
	Test(ctx context.Context, req engine.TestRequest) (harness.Report, error)
	Profile(ctx context.Context, req engine.ProfileRequest) (profiler.Stats, error)
	Analyze(ctx context.Context, req engine.AnalyzeRequest) (complexity.Estimate, error)
	Languages() []engine.LanguageInfo
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	engine    Engine
	registry  *prometheus.Registry
	mcpServer *server.MCPServer

	httpServer *http.Server
}

// New creates a new MCPServer. reg, when non-nil, is exposed on the HTTP
// transport at server.metrics_path.
func New(cfg *config.Config, logger *zap.Logger, eng Engine, reg *prometheus.Registry) (*MCPServer, error) {
	if eng == nil {
		return nil, errors.New("mcpserver: engine is required")
	}
	s := &MCPServer{
		config:   cfg,
		logger:   logger.Named("mcp"),
		engine:   eng,
		registry: reg,
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("problems_dir", cfg.ProblemsDir),
		zap.String("default_platform", cfg.DefaultPlatform),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Int("sandbox.workers", cfg.Sandbox.Workers),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.Bool("history.enabled", cfg.History.Enabled),
	)

	s.mcpServer = server.NewMCPServer("challengebox", "Runs, profiles and analyzes coding challenge solutions")
	s.registerTools()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

var selectorProperties = map[string]any{
	"challenge": map[string]any{
		"type":        "string",
		"description": "Challenge directory name",
	},
	"platform": map[string]any{
		"type":        "string",
		"description": "Platform directory, defaults to the configured default platform",
	},
	"language": map[string]any{
		"type":        "string",
		"description": "Language name or alias, defaults to the challenge or platform language",
	},
}

func withSelector(extra map[string]any) map[string]any {
	props := make(map[string]any, len(selectorProperties)+len(extra))
	for k, v := range selectorProperties {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "run_tests",
		Description: "Run a challenge's test cases against its solution in the sandbox",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withSelector(map[string]any{
				"cases": map[string]any{
					"type":        "string",
					"description": "Case selection such as \"1,3-5\", all cases when empty",
				},
				"detailed": map[string]any{
					"type":        "boolean",
					"description": "Include expected values in the outcomes",
				},
			}),
			Required: []string{"challenge"},
		},
	}, s.handleRunTests)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "profile_solution",
		Description: "Run one test case input repeatedly and report timing and memory statistics",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withSelector(map[string]any{
				"iterations": map[string]any{
					"type":        "integer",
					"description": "Number of runs, defaults to profile.iterations",
				},
				"case": map[string]any{
					"type":        "integer",
					"description": "1-based test case whose input is profiled, defaults to 1",
				},
			}),
			Required: []string{"challenge"},
		},
	}, s.handleProfile)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "analyze_complexity",
		Description: "Estimate the time complexity class of a solution from generated inputs",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: withSelector(nil),
			Required:   []string{"challenge"},
		},
	}, s.handleAnalyze)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_languages",
		Description: "List the supported solution languages",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, s.handleListLanguages)
}

func selector(request mcp.CallToolRequest) (engine.Selector, error) {
	challenge, err := request.RequireString("challenge")
	if err != nil {
		return engine.Selector{}, err
	}
	return engine.Selector{
		Platform:  request.GetString("platform", ""),
		Challenge: challenge,
		Language:  request.GetString("language", ""),
	}, nil
}

func (s *MCPServer) handleRunTests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel, err := selector(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("tests requested", zap.String("challenge", sel.Challenge), zap.String("language", sel.Language))

	report, err := s.engine.Test(ctx, engine.TestRequest{
		Selector: sel,
		Cases:    request.GetString("cases", ""),
		Detailed: request.GetBool("detailed", false),
	})
	if err != nil {
		return s.failure("run_tests", err), nil
	}
	return jsonResult(report, report.Err() != nil)
}

func (s *MCPServer) handleProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel, err := selector(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("profile requested", zap.String("challenge", sel.Challenge), zap.String("language", sel.Language))

	stats, err := s.engine.Profile(ctx, engine.ProfileRequest{
		Selector:   sel,
		Iterations: request.GetInt("iterations", 0),
		Case:       request.GetInt("case", 0),
	})
	if err != nil {
		return s.failure("profile_solution", err), nil
	}
	return jsonResult(stats, stats.Err() != nil)
}

func (s *MCPServer) handleAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel, err := selector(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("complexity analysis requested", zap.String("challenge", sel.Challenge), zap.String("language", sel.Language))

	est, err := s.engine.Analyze(ctx, engine.AnalyzeRequest{Selector: sel})
	if err != nil {
		return s.failure("analyze_complexity", err), nil
	}
	return jsonResult(est, false)
}

func (s *MCPServer) handleListLanguages(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.Languages(), false)
}

func (s *MCPServer) failure(tool string, err error) *mcp.CallToolResult {
	kind := errkind.Of(err)
	if kind.Fatal() {
		s.logger.Error("tool failed", zap.String("tool", tool), zap.Stringer("kind", kind), zap.Error(err))
	} else {
		s.logger.Info("tool failed", zap.String("tool", tool), zap.Stringer("kind", kind), zap.Error(err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
		IsError: isError,
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// Handler returns the HTTP handler serving the MCP endpoint at /mcp and,
// with a registry, the metrics endpoint.
func (s *MCPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s.mcpServer))
	if s.registry != nil {
		path := s.config.Server.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// ServeHTTP starts the server on HTTP. It returns nil after Shutdown.
func (s *MCPServer) ServeHTTP() error {
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", s.config.Server.HTTPPort))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP transport.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
