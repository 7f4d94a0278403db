package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pawdesk/app/config"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tmc/langchaingo/tools"
)

var _ tools.Tool = (*mcpToolAdapter)(nil)

type mcpToolAdapter struct {
	client client.MCPClient
	tool   mcp.Tool
	name   string
}

func (m *mcpToolAdapter) Name() string {
	return m.name
}

func (m *mcpToolAdapter) Description() string {
	return m.tool.Description
}

func (m *mcpToolAdapter) Call(ctx context.Context, input string) (string, error) {
	callRequest := mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
	}

	callRequest.Params.Name = m.tool.Name

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		args = map[string]interface{}{"input": input}
	}
	callRequest.Params.Arguments = args

	response, err := m.client.CallTool(ctx, callRequest)
	if err != nil {
		return "", fmt.Errorf("MCP tool call failed: %w", err)
	}

	var result strings.Builder
	for _, content := range response.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			result.WriteString(textContent.Text)
			result.WriteString("\n")
		}
	}

	return strings.TrimSpace(result.String()), nil
}

// MCPSource exposes business tools served by external stdio MCP servers as
// registry handlers, keyed by "<server>_<tool>".
type MCPSource struct {
	clients  []client.MCPClient
	handlers map[string]Handler
}

func ConnectMCP(servers []config.MCPServer) (*MCPSource, error) {
	source := &MCPSource{
		handlers: make(map[string]Handler),
	}

	for _, server := range servers {
		mcpClient, err := client.NewStdioMCPClient(server.Command, nil, server.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to create MCP client for %s: %w", server.Name, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		initRequest := mcp.InitializeRequest{}
		initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initRequest.Params.ClientInfo = mcp.Implementation{
			Name:    "pawdesk-executor",
			Version: "1.0.0",
		}

		if _, err = mcpClient.Initialize(ctx, initRequest); err != nil {
			return nil, fmt.Errorf("failed to initialize MCP client %s: %w", server.Name, err)
		}

		toolsResponse, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to list tools from %s: %w", server.Name, err)
		}

		for _, mcpTool := range toolsResponse.Tools {
			name := fmt.Sprintf("%s_%s", server.Name, mcpTool.Name)
			source.handlers[name] = &LangchainHandler{Tool: &mcpToolAdapter{
				client: mcpClient,
				tool:   mcpTool,
				name:   name,
			}}
		}

		source.clients = append(source.clients, mcpClient)
	}

	return source, nil
}

// Handler returns the handler for name, or nil when no connected server
// offers it. Bare catalog names match any server's suffix.
func (s *MCPSource) Handler(name string) Handler {
	if h, ok := s.handlers[name]; ok {
		return h
	}
	for full, h := range s.handlers {
		if strings.HasSuffix(full, "_"+name) {
			return h
		}
	}
	return nil
}

func (s *MCPSource) Close() error {
	for _, c := range s.clients {
		_ = c.Close()
	}
	return nil
}

// Shutdown lets the DI container close the stdio clients on exit.
func (s *MCPSource) Shutdown() error {
	return s.Close()
}
