package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/convservice"
	"github.com/starford/ansuz/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir, corpus := testutil.TestCorpus(t)
	srv := New(convservice.NewService(testutil.TestDB(t)), corpus)
	return srv, dir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we test
	// through the tool handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "create_conversation":
		result, err = srv.createConversation(ctx, req)
	case "list_conversations":
		result, err = srv.listConversations(ctx, req)
	case "read_conversation":
		result, err = srv.readConversation(ctx, req)
	case "add_message":
		result, err = srv.addMessage(ctx, req)
	case "search_messages":
		result, err = srv.searchMessages(ctx, req)
	case "read_sample":
		result, err = srv.readSample(ctx, req)
	case "get_message_contract":
		result, err = srv.getMessageContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadConversation(t *testing.T) {
	srv, _ := testServer(t)

	res := callTool(t, srv, "create_conversation", map[string]interface{}{"name": "demo"})
	text := resultText(res)
	if !strings.HasPrefix(text, "created: ") {
		t.Fatalf("unexpected create result: %q", text)
	}
	id := strings.TrimPrefix(text, "created: ")

	res = callTool(t, srv, "add_message", map[string]interface{}{
		"id":      id,
		"role":    "user",
		"content": "hello from mcp",
	})
	if !strings.HasPrefix(resultText(res), "added: ") {
		t.Fatalf("unexpected add result: %q", resultText(res))
	}

	res = callTool(t, srv, "read_conversation", map[string]interface{}{"id": id})
	out := resultText(res)
	if !strings.Contains(out, "hello from mcp") {
		t.Errorf("read output missing message: %q", out)
	}
	if !strings.Contains(out, "demo") {
		t.Errorf("read output missing name: %q", out)
	}
}

func TestAddMessageRejectsBadRole(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "create_conversation", map[string]interface{}{})
	id := strings.TrimPrefix(resultText(res), "created: ")

	res = callTool(t, srv, "add_message", map[string]interface{}{
		"id":      id,
		"role":    "moderator",
		"content": "hi",
	})
	if !res.IsError {
		t.Error("expected error result for invalid role")
	}
}

func TestSearchMessagesTool(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "create_conversation", map[string]interface{}{})
	id := strings.TrimPrefix(resultText(res), "created: ")
	callTool(t, srv, "add_message", map[string]interface{}{
		"id": id, "role": "user", "content": "the organon treatises",
	})

	res = callTool(t, srv, "search_messages", map[string]interface{}{"query": "organon"})
	if !strings.Contains(resultText(res), "organon") {
		t.Errorf("search output missing hit: %q", resultText(res))
	}
}

func TestReadSampleTool(t *testing.T) {
	srv, corpusDir := testServer(t)
	testutil.WriteSample(t, corpusDir, "a5.txt", "Organon\n\nProse.\n")

	res := callTool(t, srv, "read_sample", map[string]interface{}{"path": "a5.txt"})
	if !strings.Contains(resultText(res), "Organon") {
		t.Errorf("sample output = %q", resultText(res))
	}

	res = callTool(t, srv, "read_sample", map[string]interface{}{"path": "missing.txt"})
	if !res.IsError {
		t.Error("expected error for missing sample")
	}
}

func TestMessageContract(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "get_message_contract", map[string]interface{}{})
	out := resultText(res)
	for _, want := range []string{"role", "content", "parent_id"} {
		if !strings.Contains(out, want) {
			t.Errorf("contract missing %q", want)
		}
	}
}

func TestListConversationsEmpty(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "list_conversations", map[string]interface{}{})
	if resultText(res) != "no conversations" {
		t.Errorf("got %q", resultText(res))
	}
}
