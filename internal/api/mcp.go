package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hireloop/hireloop/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Service Reconciler
}

// NewMCPServer creates an MCP server exposing the recruiting assistant
// to MCP clients: workflow listing, step creation, and reconciled chat
// turns.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"hireloop",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("hireloop — recruiting workflows with AI-assisted step tracking and chat."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_workflows",
			mcp.WithDescription("List recruiting workflows, optionally filtered by status."),
			mcp.WithString("status", mcp.Description("Filter: draft, in_progress, completed, on_hold, or cancelled")),
		),
		mcpListWorkflows(deps),
	)

	s.AddTool(
		mcp.NewTool("add_step",
			mcp.WithDescription("Add a step to a recruiting workflow."),
			mcp.WithString("workflow_id", mcp.Description("Owning workflow id"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Step title"), mcp.Required()),
			mcp.WithString("type", mcp.Description("Step type (default: task)")),
			mcp.WithString("description", mcp.Description("Step description")),
			mcp.WithString("assigned_to", mcp.Description("Assignee (default: Unassigned)")),
		),
		mcpAddStep(deps),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a chat message in the context of a workflow. The AI reply may create workflow steps."),
			mcp.WithString("workflow_id", mcp.Description("Owning workflow id"), mcp.Required()),
			mcp.WithString("message", mcp.Description("Message text"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"workflows://recent",
			"Recent Workflows",
			mcp.WithResourceDescription("Most recently created workflows as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpListWorkflows(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := req.GetString("status", "")
		if status != "" && !storage.ValidWorkflowStatus(status) {
			return mcpError(fmt.Sprintf("invalid status %q", status)), nil
		}

		workflows, err := deps.Store.ListWorkflows(status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list workflows: %v", err)), nil
		}
		if workflows == nil {
			workflows = []storage.Workflow{}
		}

		b, err := json.Marshal(workflows)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal workflows: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddStep(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workflowID, err := req.RequireString("workflow_id")
		if err != nil {
			return mcpError("workflow_id is required"), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		if _, err := deps.Store.GetWorkflow(workflowID); err != nil {
			return mcpError(fmt.Sprintf("workflow %s not found", workflowID)), nil
		}

		now := time.Now().UTC()
		st := storage.WorkflowStep{
			ID:          uuid.New().String(),
			WorkflowID:  workflowID,
			Type:        req.GetString("type", ""),
			Title:       title,
			Description: req.GetString("description", ""),
			AssignedTo:  req.GetString("assigned_to", ""),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := deps.Store.CreateStep(st); err != nil {
			return mcpError(fmt.Sprintf("failed to create step: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Created step %s", st.ID)), nil
	}
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workflowID, err := req.RequireString("workflow_id")
		if err != nil {
			return mcpError("workflow_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		if _, err := deps.Store.GetWorkflow(workflowID); err != nil {
			return mcpError(fmt.Sprintf("workflow %s not found", workflowID)), nil
		}

		reply, err := deps.Service.ProcessMessage(ctx, workflowID, message, "user")
		if err != nil {
			return mcpError(fmt.Sprintf("chat turn failed: %v", err)), nil
		}

		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		workflows, err := deps.Store.ListWorkflows("")
		if err != nil {
			return nil, fmt.Errorf("failed to list workflows: %w", err)
		}
		if len(workflows) > 10 {
			workflows = workflows[:10]
		}

		type workflowSummary struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			WorkflowType string `json:"workflow_type"`
			Status       string `json:"status"`
			CreatedAt    string `json:"created_at"`
		}
		summaries := make([]workflowSummary, len(workflows))
		for i, w := range workflows {
			summaries[i] = workflowSummary{
				ID:           w.ID,
				Title:        w.Title,
				WorkflowType: w.WorkflowType,
				Status:       w.Status,
				CreatedAt:    w.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal workflows: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
