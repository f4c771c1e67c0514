// Package tools exposes the audit workflow as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/checkpoint"
	"github.com/JaimeStill/emissary/internal/intake"
	"github.com/JaimeStill/emissary/internal/reports"
	"github.com/JaimeStill/emissary/internal/workflow"
)

const (
	ToolRunAudit     = "run_audit"
	ToolResumeReview = "resume_review"
	ToolGetAudit     = "get_audit"
	ToolListPending  = "list_pending"
)

// Auditor is the workflow surface the tools drive.
type Auditor interface {
	Run(ctx context.Context, req workflow.RunRequest) (*workflow.Result, error)
	Resume(ctx context.Context, threadID string, decision *audit.Decision) (*workflow.Result, error)
	Status(ctx context.Context, threadID string) (*workflow.Result, error)
	Pending(ctx context.Context) ([]checkpoint.Checkpoint, error)
}

// Server wraps an MCP server whose tools run audits.
type Server struct {
	mcp     *server.MCPServer
	auditor Auditor
	intake  *intake.Reader
	reports *reports.Publisher
	logger  *slog.Logger
}

// New creates a Server and registers its tools. publisher may be nil.
func New(name, version string, auditor Auditor, reader *intake.Reader, publisher *reports.Publisher, logger *slog.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		auditor: auditor,
		intake:  reader,
		reports: publisher,
		logger:  logger.With("system", "tools"),
	}
	s.register()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves the tools over stdin and stdout until the client
// disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) register() {
	s.mcp.AddTool(mcp.NewTool(ToolRunAudit,
		mcp.WithDescription("Audit a carbon disclosure. Supply either inline text or a path to a PDF or text file."),
		mcp.WithString("text", mcp.Description("Invoice text to audit")),
		mcp.WithString("path", mcp.Description("Path to a PDF or text document")),
		mcp.WithString("thread_id", mcp.Description("Thread to start or continue; generated when empty")),
		mcp.WithString("document_id", mcp.Description("Document id; defaults to the file stem or thread id")),
		mcp.WithString("decision", mcp.Description("Review decision applied if the audit is flagged"), mcp.Enum("approve", "reject")),
	), s.handleRunAudit)

	s.mcp.AddTool(mcp.NewTool(ToolResumeReview,
		mcp.WithDescription("Apply a reviewer decision to an audit suspended for human review"),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Suspended thread")),
		mcp.WithString("decision", mcp.Required(), mcp.Enum("approve", "reject")),
	), s.handleResumeReview)

	s.mcp.AddTool(mcp.NewTool(ToolGetAudit,
		mcp.WithDescription("Fetch the latest report for an audit thread"),
		mcp.WithString("thread_id", mcp.Required()),
	), s.handleGetAudit)

	s.mcp.AddTool(mcp.NewTool(ToolListPending,
		mcp.WithDescription("List audits waiting for human review"),
	), s.handleListPending)
}

type threadResult struct {
	ThreadID  string       `json:"thread_id"`
	Suspended bool         `json:"suspended"`
	NextNode  string       `json:"next_node,omitempty"`
	Report    audit.Report `json:"report"`
	Reports   []string     `json:"reports,omitempty"`
}

func (s *Server) handleRunAudit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run := workflow.RunRequest{
		ThreadID:   req.GetString("thread_id", ""),
		DocumentID: req.GetString("document_id", ""),
		Text:       req.GetString("text", ""),
	}

	if path := req.GetString("path", ""); path != "" {
		doc, err := s.intake.ReadFile(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		run.Text = doc.Text
		if run.DocumentID == "" {
			run.DocumentID = doc.ID
		}
	}

	if d := req.GetString("decision", ""); d != "" {
		decision, err := audit.ParseDecision(d)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		run.Decision = &decision
	}

	res, err := s.auditor.Run(ctx, run)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.result(ctx, res)
}

func (s *Server) handleResumeReview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("decision")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	decision, err := audit.ParseDecision(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.auditor.Resume(ctx, threadID, &decision)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.result(ctx, res)
}

func (s *Server) handleGetAudit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.auditor.Status(ctx, threadID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(threadResult{
		ThreadID:  res.ThreadID,
		Suspended: res.Suspended,
		NextNode:  res.NextNode,
		Report:    audit.NewReport(res.Record),
	})
}

func (s *Server) handleListPending(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	waiting, err := s.auditor.Pending(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	type pending struct {
		ThreadID   string `json:"thread_id"`
		DocumentID string `json:"document_id"`
		Reason     string `json:"reason"`
	}
	out := make([]pending, 0, len(waiting))
	for _, cp := range waiting {
		p := pending{ThreadID: cp.ThreadID, DocumentID: cp.Record.DocumentID}
		if cp.Record.HumanReviewReason != nil {
			p.Reason = *cp.Record.HumanReviewReason
		}
		out = append(out, p)
	}
	return jsonResult(out)
}

func (s *Server) result(ctx context.Context, res *workflow.Result) (*mcp.CallToolResult, error) {
	out := threadResult{
		ThreadID:  res.ThreadID,
		Suspended: res.Suspended,
		NextNode:  res.NextNode,
		Report:    audit.NewReport(res.Record),
	}

	if s.reports != nil && !res.Suspended && !res.Replayed {
		written, err := s.reports.Publish(ctx, res.Record)
		if err != nil {
			s.logger.WarnContext(ctx, "report publish incomplete", "thread_id", res.ThreadID, "error", err)
		}
		out.Reports = written
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
