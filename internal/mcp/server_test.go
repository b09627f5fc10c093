package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
	"github.com/nextlevelbuilder/crosstalk/internal/store/memory"
)

func newTestClient(t *testing.T) *mcpclient.Client {
	t.Helper()
	stores := memory.New()
	roster := a2a.NewRoster([]config.RosterEntry{
		{ID: "solus", Name: "Solus"},
		{ID: "vince", Name: "Vince"},
	})
	p := a2a.New(config.Default().A2A, a2a.Identity{ID: "solus", DisplayName: "Solus"}, roster, stores.Messages, stores.Rooms)

	client, err := mcpclient.NewInProcessClient(NewServer([]*a2a.Protocol{p}).MCPServer())
	if err != nil {
		t.Fatalf("NewInProcessClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "crosstalk-test", Version: "test"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return client
}

func messageJSON(t *testing.T, m a2a.Message) string {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func replyToSolus() a2a.Message {
	return a2a.Message{
		ID:             "m1",
		RoomID:         "discord:c1",
		SenderEntityID: "vince",
		AgentID:        "vince",
		Content: a2a.Content{
			Text:              "agreed",
			SenderDisplayName: "Vince",
			ChannelName:       "general",
			Metadata: a2a.Metadata{
				IsBot:   true,
				ReplyTo: &a2a.ReplyTo{AuthorID: "solus", IsBot: true},
			},
		},
		CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func callTool(t *testing.T, c *mcpclient.Client, name string, args map[string]any) *mcpgo.CallToolResult {
	t.Helper()
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := mcpgo.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return text.Text
}

func TestListTools(t *testing.T) {
	c := newTestClient(t)
	res, err := c.ListTools(context.Background(), mcpgo.ListToolsRequest{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	want := map[string]bool{ToolEvaluate: false, ToolArbitrate: false, ToolLoopGuard: false, ToolAnnotate: false}
	for _, tool := range res.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %s not listed", name)
		}
	}
}

func TestEvaluateTool(t *testing.T) {
	c := newTestClient(t)
	res := callTool(t, c, ToolEvaluate, map[string]any{
		"agent_id": "solus",
		"message":  messageJSON(t, replyToSolus()),
	})
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	var v a2a.Verdict
	if err := json.Unmarshal([]byte(resultText(t, res)), &v); err != nil {
		t.Fatal(err)
	}
	if v.ShouldRespond || v.Guard == nil || v.Guard.State != a2a.GuardBlockedSelf {
		t.Errorf("verdict = %+v", v)
	}
}

func TestLoopGuardTool(t *testing.T) {
	c := newTestClient(t)
	res := callTool(t, c, ToolLoopGuard, map[string]any{
		"agent_id": "solus",
		"message":  messageJSON(t, replyToSolus()),
	})
	var g a2a.GuardDecision
	if err := json.Unmarshal([]byte(resultText(t, res)), &g); err != nil {
		t.Fatal(err)
	}
	if g.ShouldRespond || g.State != a2a.GuardBlockedSelf {
		t.Errorf("guard = %+v", g)
	}
}

func TestArbitrateTool(t *testing.T) {
	c := newTestClient(t)
	res := callTool(t, c, ToolArbitrate, map[string]any{
		"agent_id": "solus",
		"message":  messageJSON(t, replyToSolus()),
	})
	var d a2a.Decision
	if err := json.Unmarshal([]byte(resultText(t, res)), &d); err != nil {
		t.Fatal(err)
	}
	if !d.ShouldRespond || d.SkipEvaluation {
		t.Errorf("decision = %+v", d)
	}
}

func TestToolErrors(t *testing.T) {
	c := newTestClient(t)
	noRoom := replyToSolus()
	noRoom.RoomID = ""

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing agent", map[string]any{"message": messageJSON(t, replyToSolus())}},
		{"unknown agent", map[string]any{"agent_id": "nobody", "message": messageJSON(t, replyToSolus())}},
		{"bad json", map[string]any{"agent_id": "solus", "message": "{"}},
		{"missing room", map[string]any{"agent_id": "solus", "message": messageJSON(t, noRoom)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := callTool(t, c, ToolAnnotate, tt.args); !res.IsError {
				t.Errorf("expected tool error, got %q", resultText(t, res))
			}
		})
	}
}
