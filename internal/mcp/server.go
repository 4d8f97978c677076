package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskauto/internal/core"
	"taskauto/internal/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the engine's operator surface as MCP tools over stdio.
type MCPServer struct {
	store    *store.Store
	driver   *core.Driver
	logger   *slog.Logger
	location *time.Location
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(store *store.Store, driver *core.Driver, logger *slog.Logger, location *time.Location) *MCPServer {
	return &MCPServer{
		store:    store,
		driver:   driver,
		logger:   logger,
		location: location,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"taskauto",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("automation_list",
		mcp.WithDescription("List all recurring automations"),
	), s.handleListAutomations)

	mcpServer.AddTool(mcp.NewTool("automation_get",
		mcp.WithDescription("Get one automation with its templates"),
		mcp.WithString("automation_id",
			mcp.Required(),
			mcp.Description("Automation ID"),
		),
	), s.handleGetAutomation)

	mcpServer.AddTool(mcp.NewTool("automation_status",
		mcp.WithDescription("Status report over all automations: next run, last run, template and task counts"),
	), s.handleStatusReport)

	mcpServer.AddTool(mcp.NewTool("automation_force_run",
		mcp.WithDescription("Clear an automation's run marker and immediately re-evaluate it; approval gating still applies"),
		mcp.WithString("automation_id",
			mcp.Required(),
			mcp.Description("Automation ID"),
		),
	), s.handleForceRun)

	mcpServer.AddTool(mcp.NewTool("automation_review_template",
		mcp.WithDescription("Apply a review decision to a template entry"),
		mcp.WithString("template_id",
			mcp.Required(),
			mcp.Description("Template ID"),
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("Review decision"),
			mcp.Enum("approved", "rejected", "pending"),
		),
	), s.handleReviewTemplate)

	s.logger.Info("MCP tools registered", "count", 5)
}

func (s *MCPServer) handleListAutomations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	automations, err := s.store.ListAutomations(ctx)
	if err != nil {
		s.logger.Error("list automations", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list automations: %v", err)), nil
	}
	if len(automations) == 0 {
		return mcp.NewToolResultText("no automations configured"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d automations:\n\n", len(automations))
	for _, a := range automations {
		fmt.Fprintf(&b, "%s  %s\n", a.ID, a.Name)
		fmt.Fprintf(&b, "  cadence: %s\n", a.Cadence.Kind())
		fmt.Fprintf(&b, "  templates: %d (%d approved)\n", len(a.Templates), len(core.ApprovedTemplates(a)))
		fmt.Fprintf(&b, "  tasks created: %d\n\n", a.TasksCreated)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGetAutomation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	automationID := mcp.ParseString(request, "automation_id", "")
	a, err := s.store.GetAutomation(ctx, automationID)
	if err != nil {
		if err == store.ErrAutomationNotFound {
			return mcp.NewToolResultError(fmt.Sprintf("automation not found: %s", automationID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to load automation: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\nName: %s\nCadence: %s\n", a.ID, a.Name, a.Cadence.Kind())
	if a.LastRunPeriod != nil {
		fmt.Fprintf(&b, "Last run: %s\n", a.LastRunPeriod)
	} else if a.LastRunAt != nil {
		fmt.Fprintf(&b, "Last run: %s\n", a.LastRunAt.In(s.location).Format(time.RFC3339))
	} else {
		b.WriteString("Last run: never\n")
	}
	fmt.Fprintf(&b, "Tasks created: %d\nTemplates:\n", a.TasksCreated)
	for _, tpl := range a.Templates {
		fmt.Fprintf(&b, "  [%s] %s  %s\n", tpl.ApprovalState, tpl.ID, tpl.Title)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleStatusReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.driver.StatusReport(ctx)
	if err != nil {
		s.logger.Error("status report", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to build status report: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d automations at %s:\n\n", report.TotalAutomations, report.CurrentTime.Format(time.RFC3339))
	for _, entry := range report.StatusReport {
		fmt.Fprintf(&b, "%s  %s\n", entry.ID, entry.Name)
		fmt.Fprintf(&b, "  cadence: %s, status: %s\n", entry.CadenceKind, entry.Status)
		if entry.NextRunDate != nil {
			fmt.Fprintf(&b, "  next run: %s\n", entry.NextRunDate.In(s.location).Format(time.RFC3339))
		}
		if entry.LastRunDate != nil {
			fmt.Fprintf(&b, "  last run: %s\n", *entry.LastRunDate)
		}
		fmt.Fprintf(&b, "  templates: %d (%d approved), tasks created: %d\n",
			entry.TemplateCount, entry.ApprovedTemplateCount, entry.TasksCreatedCount)
		if entry.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", entry.Error)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleForceRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	automationID := mcp.ParseString(request, "automation_id", "")
	result, err := s.driver.ForceRun(ctx, automationID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("force run failed: %v", err)), nil
	}
	text := fmt.Sprintf("outcome: %s, tasks created: %d", result.Outcome, result.TasksCreated)
	if result.Error != "" {
		text += fmt.Sprintf(", error: %s", result.Error)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleReviewTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateID := mcp.ParseString(request, "template_id", "")
	decision := core.ApprovalState(mcp.ParseString(request, "decision", ""))
	switch decision {
	case core.ApprovalApproved, core.ApprovalRejected, core.ApprovalPending:
	default:
		return mcp.NewToolResultError("decision must be approved, rejected or pending"), nil
	}

	if err := s.store.UpdateTemplateApproval(ctx, templateID, decision); err != nil {
		if err == store.ErrTemplateNotFound {
			return mcp.NewToolResultError(fmt.Sprintf("template not found: %s", templateID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to update template: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("template %s marked %s", templateID, decision)), nil
}
