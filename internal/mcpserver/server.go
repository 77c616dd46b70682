// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes Ansuz conversation tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/convservice"
	"github.com/starford/ansuz/internal/samples"
)

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *convservice.Service
	corpus *samples.FS
}

// New creates a new MCP server with all Ansuz tools registered.
func New(svc *convservice.Service, corpus *samples.FS) *Server {
	s := &Server{svc: svc, corpus: corpus}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("create_conversation",
		mcp.WithDescription("Create a new conversation. The name is optional."),
		mcp.WithString("name", mcp.Description("Display name for the conversation")),
	), s.createConversation)

	s.mcp.AddTool(mcp.NewTool("list_conversations",
		mcp.WithDescription("List conversations, newest first."),
	), s.listConversations)

	s.mcp.AddTool(mcp.NewTool("read_conversation",
		mcp.WithDescription("Read a conversation and its full message thread."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Conversation UUID")),
	), s.readConversation)

	s.mcp.AddTool(mcp.NewTool("add_message",
		mcp.WithDescription("Append a message to a conversation. Messages MUST follow the "+
			"canonical message format (role in user/assistant/system, non-empty content). "+
			"Read the contract first via the get_message_contract tool or the "+
			"ansuz://message-format resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Conversation UUID")),
		mcp.WithString("role", mcp.Required(), mcp.Description("Message role: user, assistant, or system")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message content (non-empty)")),
		mcp.WithString("parent_id", mcp.Description("UUID of the parent message, for branched threads")),
	), s.addMessage)

	s.mcp.AddTool(mcp.NewTool("search_messages",
		mcp.WithDescription("Full-text search over message content across all conversations."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchMessages)

	s.mcp.AddTool(mcp.NewTool("read_sample",
		mcp.WithDescription("Read one file from the sample text corpus."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the sample (e.g. a5.txt)")),
	), s.readSample)

	s.mcp.AddTool(mcp.NewTool("get_message_contract",
		mcp.WithDescription("Returns the canonical Ansuz message format contract. "+
			"Call this before adding messages to ensure correct structure."),
	), s.getMessageContract)

	// Resource: message format contract.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://message-format", "Message Format Contract",
			mcp.WithResourceDescription("Canonical message format that all conversation messages must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMessageFormatResource,
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

func (s *Server) createConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := ""
	if n, err := req.RequireString("name"); err == nil {
		name = n
	}
	c, err := s.svc.CreateConversation(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", c.ID)), nil
}

func (s *Server) listConversations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.svc.ListConversations(ctx, nil, 0, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var lines []string
	for _, c := range items {
		lines = append(lines, fmt.Sprintf("%s\t%s\t(%d messages)", c.ID, c.Name, c.MessageCount))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no conversations"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid conversation id: %s", raw)), nil
	}
	c, msgs, err := s.svc.GetConversation(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{"conversation": c, "messages": msgs}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) addMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid conversation id: %s", raw)), nil
	}
	role, err := req.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var parentID *uuid.UUID
	if rawParent, perr := req.RequireString("parent_id"); perr == nil && rawParent != "" {
		p, parseErr := uuid.Parse(rawParent)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid parent id: %s", rawParent)), nil
		}
		parentID = &p
	}

	m, err := s.svc.AddMessage(ctx, id, role, content, parentID, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %s", m.ID)), nil
}

func (s *Server) searchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readSample(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.corpus.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) getMessageContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MessageFormatContract), nil
}

func (s *Server) readMessageFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://message-format",
			MIMEType: "text/markdown",
			Text:     MessageFormatContract,
		},
	}, nil
}
