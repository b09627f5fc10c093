// Package mcp exposes the turn-taking decisions as MCP tools, so an external agent
// runtime can ask "should I reply?" before generating.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
)

// Version is reported in the MCP initialize handshake.
var Version = "dev"

// Tool names.
const (
	ToolEvaluate  = "evaluate"
	ToolArbitrate = "classify_and_arbitrate"
	ToolLoopGuard = "loop_guard_decide"
	ToolAnnotate  = "annotate_context"
)

// Server wraps an MCPServer whose tools dispatch to the protocol of the named agent.
type Server struct {
	mcp       *server.MCPServer
	protocols map[string]*a2a.Protocol
}

// NewServer registers the decision tools for the given protocols.
func NewServer(protocols []*a2a.Protocol) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			"crosstalk",
			Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
		protocols: make(map[string]*a2a.Protocol, len(protocols)),
	}
	for _, p := range protocols {
		s.protocols[p.Self().ID] = p
	}

	s.mcp.AddTool(decisionTool(ToolEvaluate,
		"Full turn decision for one inbound message: arbitration, loop guard and generation guidance."), s.handleEvaluate)
	s.mcp.AddTool(decisionTool(ToolArbitrate,
		"Classify the room and sender and decide whether the agent takes the turn."), s.handleArbitrate)
	s.mcp.AddTool(decisionTool(ToolLoopGuard,
		"Authoritative agent-to-agent loop guard: blocks self replies and exhausted exchange budgets."), s.handleGuard)
	s.mcp.AddTool(decisionTool(ToolAnnotate,
		"Guidance text to prepend to the generation context, empty when none applies."), s.handleAnnotate)
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve speaks MCP over the given reader and writer until ctx ends.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	slog.Info("mcp: serving stdio", "agents", s.agentIDs())
	if err := server.NewStdioServer(s.mcp).Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

func decisionTool(name, description string) mcpgo.Tool {
	return mcpgo.NewTool(name,
		mcpgo.WithDescription(description),
		mcpgo.WithString("agent_id",
			mcpgo.Required(),
			mcpgo.Description("Id of the hosted agent deciding the turn"),
		),
		mcpgo.WithString("message",
			mcpgo.Required(),
			mcpgo.Description("The inbound log entry as JSON (id, room_id, sender_entity_id, content, created_at)"),
		),
	)
}

// resolve returns the protocol and decoded message, or a tool error result.
func (s *Server) resolve(req mcpgo.CallToolRequest) (*a2a.Protocol, a2a.Message, *mcpgo.CallToolResult) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return nil, a2a.Message{}, mcpgo.NewToolResultError(err.Error())
	}
	p, ok := s.protocols[agentID]
	if !ok {
		return nil, a2a.Message{}, mcpgo.NewToolResultError(fmt.Sprintf("unknown agent %q (hosted: %s)", agentID, strings.Join(s.agentIDs(), ", ")))
	}
	raw, err := req.RequireString("message")
	if err != nil {
		return nil, a2a.Message{}, mcpgo.NewToolResultError(err.Error())
	}
	var msg a2a.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, a2a.Message{}, mcpgo.NewToolResultError("invalid message JSON: " + err.Error())
	}
	if msg.RoomID == "" {
		return nil, a2a.Message{}, mcpgo.NewToolResultError("message.room_id is required")
	}
	return p, msg, nil
}

func (s *Server) handleEvaluate(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	p, msg, errResult := s.resolve(req)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(p.Evaluate(ctx, msg))
}

func (s *Server) handleArbitrate(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	p, msg, errResult := s.resolve(req)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(p.ClassifyAndArbitrate(ctx, msg))
}

func (s *Server) handleGuard(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	p, msg, errResult := s.resolve(req)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(p.LoopGuard().Decide(ctx, msg))
}

func (s *Server) handleAnnotate(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	p, msg, errResult := s.resolve(req)
	if errResult != nil {
		return errResult, nil
	}
	return mcpgo.NewToolResultText(p.AnnotateContext(ctx, msg)), nil
}

func jsonResult(v interface{}) (*mcpgo.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

func (s *Server) agentIDs() []string {
	ids := make([]string, 0, len(s.protocols))
	for id := range s.protocols {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

const instructions = `crosstalk decides whether an agent sharing a chat room with humans and other agents should reply to a message.
Call evaluate before generating a reply. If should_respond is false, stay silent.
If guidance is non-empty, prepend it to your generation context.`
