// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the reference engine for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/link"
	"github.com/starford/raido/internal/refs"
	"github.com/starford/raido/internal/refsvc"
	"github.com/starford/raido/internal/storage"
)

// Server wraps the MCP server with reference engine tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *refsvc.Service
	store storage.Provider
}

// New creates a new MCP server with all tools registered.
func New(svc *refsvc.Service, store storage.Provider) *Server {
	s := &Server{svc: svc, store: store}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("find_references",
		mcp.WithDescription("Find every note line that references an image, across all link dialects."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative image path (e.g. img/cat.png)")),
		mcp.WithString("name", mcp.Description("Bare file name fallback; defaults to the path's base name")),
	), s.findReferences)

	s.mcp.AddTool(mcp.NewTool("rewrite_reference",
		mcp.WithDescription("Rewrite one image reference line: change its display text, size, or target path. "+
			"expected_line must hold the line text as last observed; a line that already carries the "+
			"requested values is reported as unchanged. Read the raido://link-dialects resource for "+
			"the supported grammars."),
		mcp.WithString("note_path", mcp.Required(), mcp.Description("Note containing the reference")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("1-based line number of the reference")),
		mcp.WithString("expected_line", mcp.Required(), mcp.Description("The line text as last observed")),
		mcp.WithString("display", mcp.Description("New display/alt text; empty string clears it")),
		mcp.WithString("size", mcp.Description("New display size as W or WxH; empty string clears it")),
		mcp.WithString("target", mcp.Description("New target path for the link")),
	), s.rewriteReference)

	s.mcp.AddTool(mcp.NewTool("rename_image",
		mcp.WithDescription("Move an image and update every reference to it across the vault. "+
			"Only the path component of each link changes."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Current vault-relative image path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New vault-relative image path")),
	), s.renameImage)

	s.mcp.AddTool(mcp.NewTool("image_history",
		mcp.WithDescription("List the recorded rewrite operations for an image, newest first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative image path")),
	), s.imageHistory)

	s.mcp.AddTool(mcp.NewTool("upload_image",
		mcp.WithDescription("Download an image from a URL (or decode a data: URI) and store it in the vault. "+
			"Returns the saved path and a ready-to-paste wiki embed."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or base64 data: URI")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when omitted")),
	), s.uploadImage)

	// Resource: the three link dialect grammars.
	s.mcp.AddResource(
		mcp.NewResource("raido://link-dialects", "Image Link Dialects",
			mcp.WithResourceDescription("The three textual grammars used to embed images in notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDialectsResource,
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

func (s *Server) findReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := req.GetString("name", filepath.Base(path))

	references, err := s.svc.FindReferences(ctx, path, name, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(references) == 0 {
		return mcp.NewToolResultText("no references found"), nil
	}
	out, _ := json.MarshalIndent(references, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) rewriteReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notePath, err := req.RequireString("note_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	expected, err := req.RequireString("expected_line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rreq := refs.Request{NotePath: notePath, Line: line, ExpectedLine: expected}
	args := req.GetArguments()
	if v, ok := args["display"].(string); ok {
		rreq.NewDisplay = &v
	}
	if v, ok := args["target"].(string); ok {
		rreq.NewTarget = &v
	}
	if v, ok := args["size"].(string); ok {
		if v == "" {
			zero := 0
			rreq.NewWidth = &zero
		} else {
			w, h, sizeErr := link.ParseSizeSpec(v)
			if sizeErr != nil {
				return mcp.NewToolResultError(sizeErr.Error()), nil
			}
			rreq.NewWidth = &w
			if h > 0 {
				rreq.NewHeight = &h
			}
		}
	}

	result, err := s.svc.Rewrite(ctx, rreq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if result == nil {
		return mcp.NewToolResultText("unchanged: line already holds the requested values"), nil
	}
	return mcp.NewToolResultText("rewritten: " + result.Line), nil
}

func (s *Server) renameImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results, err := s.svc.Rename(ctx, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	changed, unchanged, failed := refs.Summarize(results)
	summary := fmt.Sprintf("renamed %s -> %s: %d changed, %d unchanged, %d failed across %d notes",
		from, to, changed, unchanged, failed, len(results))
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) imageHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ops, err := s.svc.History(ctx, path, 50)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(ops) == 0 {
		return mcp.NewToolResultText("no recorded operations"), nil
	}
	out, _ := json.MarshalIndent(ops, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDialectsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "raido://link-dialects",
			MIMEType: "text/markdown",
			Text:     LinkDialectContract,
		},
	}, nil
}
