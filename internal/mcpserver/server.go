// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes vault scanning and publishing tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dispatch/internal/apperr"
	"github.com/starford/dispatch/internal/docservice"
)

const rulesURI = "dispatch://publishing-rules"

// Server wraps the MCP server with dispatch tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *docservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Dispatch",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("scan_vault",
		mcp.WithDescription("Scan the vault and list publishable documents, newest first, "+
			"with warnings and publish state. Read the publishing rules first via the "+
			"get_publishing_rules tool or the "+rulesURI+" resource."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents (0 or absent for all)")),
	), s.scanVault)

	s.mcp.AddTool(mcp.NewTool("repository_status",
		mcp.WithDescription("Report the publication repository state: branch, head commit, dirty and conflicted files."),
	), s.repositoryStatus)

	s.mcp.AddTool(mcp.NewTool("publish_document",
		mcp.WithDescription("Publish a vault document into this year's directory of the publication "+
			"repository, then commit, pull --rebase and push. Returns the public URL."),
		mcp.WithString("source_path", mcp.Required(), mcp.Description("Vault-relative path (e.g. blog/2025/my-post.md)")),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the published post")),
	), s.publishDocument)

	s.mcp.AddTool(mcp.NewTool("unpublish_document",
		mcp.WithDescription("Move a published document back to the drafts directory and push. "+
			"Never overwrites an existing draft."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the published post")),
	), s.unpublishDocument)

	s.mcp.AddTool(mcp.NewTool("document_diff",
		mcp.WithDescription("Show a unified diff between a vault document and its published copy."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Document slug")),
	), s.documentDiff)

	s.mcp.AddTool(mcp.NewTool("publish_history",
		mcp.WithDescription("List recorded publish/unpublish transitions and repository commits for a slug, "+
			"or the most recent transitions when no slug is given."),
		mcp.WithString("slug", mcp.Description("Document slug (optional)")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries")),
	), s.publishHistory)

	s.mcp.AddTool(mcp.NewTool("get_publishing_rules",
		mcp.WithDescription("Returns the vault layout and publishing rules."),
	), s.getPublishingRules)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Publishing Rules",
			mcp.WithResourceDescription("Vault layout, document warnings and publish/unpublish rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) scanVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.Scan(ctx, req.GetInt("limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(docs)
}

func (s *Server) repositoryStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Status(ctx))
}

func (s *Server) publishDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Publish(ctx, source, slug)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("published: %s", res.URL)), nil
}

func (s *Server) unpublishDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Unpublish(ctx, slug)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("unpublished: %s moved to %s", slug, res.TargetPath)), nil
}

func (s *Server) documentDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Diff(ctx, slug)
	if err != nil {
		return toolError(err), nil
	}
	switch {
	case !res.Published:
		return mcp.NewToolResultText(fmt.Sprintf("%s is not published", slug)), nil
	case !res.Differs:
		return mcp.NewToolResultText(fmt.Sprintf("%s is in sync with %s", slug, res.PublishedURL)), nil
	}
	return mcp.NewToolResultText(res.Diff), nil
}

func (s *Server) publishHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h, err := s.svc.History(ctx, req.GetString("slug", ""), req.GetInt("limit", 20))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(h)
}

func (s *Server) getPublishingRules(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PublishingRules), nil
}

func (s *Server) readRulesResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     PublishingRules,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError renders err for the model, prefixed with its classification.
func toolError(err error) *mcp.CallToolResult {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return mcp.NewToolResultError(fmt.Sprintf("%s error: %s", ae.Kind, err.Error()))
	}
	return mcp.NewToolResultError(err.Error())
}
