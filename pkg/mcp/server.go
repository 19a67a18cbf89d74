package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/duynguyendang/mbe/pkg/datalog"
	"github.com/duynguyendang/mbe/pkg/service"
)

// MCPServer exposes one project of the engine as MCP tools.
type MCPServer struct {
	project   string
	graph     *service.GraphService
	interpret *service.InterpretationService
}

// New wraps the services for project.
func New(project string, graph *service.GraphService, interpret *service.InterpretationService) *MCPServer {
	return &MCPServer{project: project, graph: graph, interpret: interpret}
}

// Run starts the MCP server on Stdio.
func Run(ctx context.Context, ms *MCPServer) error {
	slog.Info("Starting MCP server on Stdio", "project", ms.project)
	return server.ServeStdio(ms.Server())
}

// Server registers the resources and tools on a new mcp-go server.
func (ms *MCPServer) Server() *server.MCPServer {
	s := server.NewMCPServer(
		"MBE-Interpreter",
		"0.1.0",
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)

	// --- Resources ---

	s.AddResource(
		mcp.NewResource(
			"mbe://model/summary",
			"Model Summary",
			mcp.WithResourceDescription("Element, metatype and relationship counts of the loaded model"),
			mcp.WithMIMEType("application/json"),
		),
		ms.handleModelSummary,
	)

	s.AddResource(
		mcp.NewResource(
			"mbe://schema/conventions",
			"Query Conventions",
			mcp.WithResourceDescription("Projections and query predicates available to the tools"),
			mcp.WithMIMEType("text/markdown"),
		),
		ms.handleConventions,
	)

	// --- Tools ---

	s.AddTool(
		mcp.NewTool(
			"list_projections",
			mcp.WithDescription("List the named projections of the model graph."),
		),
		ms.handleListProjections,
	)

	s.AddTool(
		mcp.NewTool(
			"get_projection",
			mcp.WithDescription("Get a named projection as nodes and links."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Projection name, e.g. Banded")),
			mcp.WithString("packages", mcp.Description("Comma separated package ids to restrict to")),
		),
		ms.handleGetProjection,
	)

	s.AddTool(
		mcp.NewTool(
			"interpret_model",
			mcp.WithDescription("Generate a population of instances for the model and optionally evaluate its expressions."),
			mcp.WithNumber("seed", mcp.Description("Sampling seed; 0 picks one")),
			mcp.WithBoolean("solve", mcp.Description("Evaluate expressions after sampling")),
			mcp.WithString("features", mcp.Description("Comma separated feature ids to return (default all)")),
		),
		ms.handleInterpret,
	)

	s.AddTool(
		mcp.NewTool(
			"rollup_multiplicity",
			mcp.WithDescription("Compute the effective multiplicity of a feature across its nesting."),
			mcp.WithString("feature", mcp.Required(), mcp.Description("Feature element id")),
		),
		ms.handleRollup,
	)

	s.AddTool(
		mcp.NewTool(
			"query_edges",
			mcp.WithDescription("Evaluate a conjunctive query such as edge(F, \"FeatureTyping\", T) over a projection."),
			mcp.WithString("query", mcp.Required(), mcp.Description("The query string")),
			mcp.WithString("projection", mcp.Description("Projection name (default: base graph)")),
			mcp.WithNumber("limit", mcp.Description("Max number of rows (default 50)")),
		),
		ms.handleQueryEdges,
	)

	s.AddTool(
		mcp.NewTool(
			"find_path",
			mcp.WithDescription("Find the shortest paths between two elements of a projection."),
			mcp.WithString("source", mcp.Required(), mcp.Description("Start element id")),
			mcp.WithString("target", mcp.Required(), mcp.Description("End element id")),
			mcp.WithString("projection", mcp.Description("Projection name (default: base graph)")),
		),
		ms.handleFindPath,
	)

	return s
}

// --- Resource Handlers ---

func (ms *MCPServer) handleModelSummary(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	summary, err := ms.graph.GenerateSummary(ctx, ms.project)
	if err != nil {
		return nil, err
	}
	jsonBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

func (ms *MCPServer) handleConventions(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	recipes, err := ms.graph.ListProjections(ctx, ms.project)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString("# Model Graph Conventions\n\n## 1. Projections\n")
	for _, r := range recipes {
		fmt.Fprintf(&sb, "- '%s': %s\n", r.Name, r.Description)
	}
	sb.WriteString("\n## 2. Query Predicates\n")
	for _, p := range datalog.Predicates() {
		fmt.Fprintf(&sb, "- '%s'\n", p)
	}
	sb.WriteString(`
## 3. Usage Guidelines
- Edge labels are relationship metatypes; reversed edges end in '^-1'.
- Variables start with an upper case letter or '_'; quote constants that do not.
- Use 'Banded' to walk from a feature toward the classifiers that contain it.
`)
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/markdown",
			Text:     sb.String(),
		},
	}, nil
}

// --- Tool Handlers ---

func (ms *MCPServer) handleListProjections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recipes, err := ms.graph.ListProjections(ctx, ms.project)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing projections failed: %v", err)), nil
	}
	lines := make([]string, len(recipes))
	for i, r := range recipes {
		lines[i] = fmt.Sprintf("%s: %s", r.Name, r.Description)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (ms *MCPServer) handleGetProjection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	name, ok := args["name"].(string)
	if !ok {
		return mcp.NewToolResultError("name argument required"), nil
	}
	packages, _ := args["packages"].(string)

	graph, err := ms.graph.ExportProjection(ctx, ms.project, name, splitList(packages))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("projection failed: %v", err)), nil
	}
	return jsonResult(graph)
}

func (ms *MCPServer) handleInterpret(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req := service.InterpretRequest{}
	if seed, ok := args["seed"].(float64); ok {
		req.Seed = int64(seed)
	}
	req.Solve, _ = args["solve"].(bool)
	if features, ok := args["features"].(string); ok {
		req.Features = splitList(features)
	}

	run, err := ms.interpret.Interpret(ctx, ms.project, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("interpretation failed: %v", err)), nil
	}
	return jsonResult(run)
}

func (ms *MCPServer) handleRollup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	feature, ok := args["feature"].(string)
	if !ok {
		return mcp.NewToolResultError("feature argument required"), nil
	}

	res, err := ms.graph.Rollup(ctx, ms.project, feature)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rollup failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: declared [%d..%d], effective [%d..%d]",
		res.Feature, res.DeclaredLower, res.DeclaredUpper, res.Lower, res.Upper)), nil
}

func (ms *MCPServer) handleQueryEdges(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query, ok := args["query"].(string)
	if !ok {
		return mcp.NewToolResultError("query argument required"), nil
	}
	projection, _ := args["projection"].(string)

	limit := 50 // Safety limit
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	res, err := ms.graph.ExecuteQuery(ctx, ms.project, projection, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if len(res.Rows) == 0 {
		return mcp.NewToolResultText("No results found."), nil
	}

	formatted := []string{strings.Join(res.Vars, "\t")}
	for _, row := range res.Rows {
		formatted = append(formatted, strings.Join(row, "\t"))
	}
	if len(res.Rows) == limit {
		formatted = append(formatted, "... (truncated)")
	}
	return mcp.NewToolResultText(strings.Join(formatted, "\n")), nil
}

func (ms *MCPServer) handleFindPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	source, ok1 := args["source"].(string)
	target, ok2 := args["target"].(string)
	if !ok1 || !ok2 {
		return mcp.NewToolResultError("source and target arguments required"), nil
	}
	projection, _ := args["projection"].(string)

	graph, err := ms.graph.FindPath(ctx, ms.project, projection, source, target)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pathfinding failed: %v", err)), nil
	}
	if len(graph.Nodes) == 0 {
		return mcp.NewToolResultText("No path found."), nil
	}
	return jsonResult(graph)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result"), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
