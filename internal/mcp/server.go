// Package mcp exposes the workflow service as MCP tools so agent clients
// can read and edit workflows over the same optimistic-locking protocol the
// HTTP API uses.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"flowstudio/backend/internal/repository"
	"flowstudio/backend/internal/services"
	"flowstudio/backend/pkg/models"
)

// agentAuthor attributes MCP-originated edits in the audit log.
const agentAuthor = "mcp-agent"

type Server struct {
	mcpServer *server.MCPServer
	workflows services.Workflows
}

func NewServer(workflows services.Workflows) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"FlowStudio Workflows",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflows: workflows,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List all workflows, newest first"),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Fetch a workflow including its current version"),
			mcp.WithString("id", mcp.Required(), mcp.Description("The workflow ID")),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"update_workflow",
			mcp.WithDescription("Update a workflow's name or description using optimistic locking. Pass the version you last read; a conflict means someone else edited first."),
			mcp.WithString("id", mcp.Required(), mcp.Description("The workflow ID")),
			mcp.WithNumber("version", mcp.Description("The version the edit is based on")),
			mcp.WithString("name", mcp.Description("New workflow name")),
			mcp.WithString("description", mcp.Description("New workflow description")),
		),
		s.handleUpdateWorkflow,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflows, err := s.workflows.ListWorkflows(ctx, 0, 100)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(workflows)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	wf, err := s.workflows.GetWorkflow(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return mcp.NewToolResultError("Workflow not found"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get workflow: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(wf)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleUpdateWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	patch := newPatch(args)
	var baseVersion *int
	if v, ok := args["version"].(float64); ok {
		version := int(v)
		baseVersion = &version
	}

	wf, err := s.workflows.UpdateWorkflow(ctx, id, patch, baseVersion, agentAuthor)
	if err != nil {
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Version conflict: workflow is now at version %d (you submitted %d, last edited by %s). Re-read and retry.",
				conflict.CurrentVersion, conflict.SubmittedVersion, conflict.LastModifiedBy)), nil
		}
		if errors.Is(err, repository.ErrNotFound) {
			return mcp.NewToolResultError("Workflow not found"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update workflow: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(wf)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func newPatch(args map[string]interface{}) *models.WorkflowPatch {
	patch := &models.WorkflowPatch{}
	if name, ok := args["name"].(string); ok {
		patch.Name = &name
	}
	if desc, ok := args["description"].(string); ok {
		patch.Description = &desc
	}
	return patch
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
