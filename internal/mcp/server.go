package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/phuslu/log"

	"github.com/dshills/filesense/internal/app"
)

// ServerName is the MCP server name
const ServerName = "filesense"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	app    *app.App
	logger *log.Logger
}

// NewServer creates a new MCP server instance backed by a
func NewServer(a *app.App) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		a.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:    mcpServer,
		app:    a,
		logger: a.Logger,
	}
	s.registerTools()

	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown. The
// caller owns the App and closes it afterwards.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info().Str("transport", "stdio").Msg("MCP server listening")
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexFolderTool(), s.handleIndexFolder)
	s.mcp.AddTool(searchFilesTool(), s.handleSearchFiles)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(cleanupTool(), s.handleCleanup)
	s.mcp.AddTool(rebuildIndexTool(), s.handleRebuildIndex)
	s.mcp.AddTool(updateFileTool(), s.handleUpdateFile)
	s.mcp.AddTool(suggestTool(), s.handleSuggest)
	s.mcp.AddTool(pauseIndexingTool(), s.handlePauseIndexing)
	s.mcp.AddTool(resumeIndexingTool(), s.handleResumeIndexing)
	s.mcp.AddTool(cancelIndexingTool(), s.handleCancelIndexing)
}
