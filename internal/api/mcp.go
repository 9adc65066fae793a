package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the campus assistant over MCP so agent hosts can ask
// questions and fetch the suggestion list as tools.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"campuschat",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("campuschat: informational assistant for Velammal College of Engineering and Technology."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the campus assistant a question about VCET (courses, admissions, placements, facilities)."),
			mcp.WithString("query", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("suggestions",
			mcp.WithDescription("List suggested questions to ask the campus assistant."),
			mcp.WithNumber("count", mcp.Description("Maximum number of suggestions (default all)")),
		),
		mcpSuggestions(deps),
	)

	return s
}

func mcpAsk(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		query = strings.TrimSpace(query)
		if query == "" {
			return mcpError("query cannot be empty"), nil
		}
		if utf8.RuneCountInString(query) > maxQueryLen {
			return mcpError(fmt.Sprintf("query is too long (max %d characters)", maxQueryLen)), nil
		}
		if deps.Answerer == nil {
			return mcpError("assistant is not initialized"), nil
		}

		if deps.Cache != nil {
			if answer, ok := deps.Cache.Get(query); ok {
				if deps.Stats != nil {
					deps.Stats.RecordHit()
				}
				return mcpText(answer), nil
			}
		}

		answer, err := deps.Answerer.Answer(ctx, query, "")
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}
		if deps.Cache != nil {
			deps.Cache.Set(query, answer)
		}
		return mcpText(answer), nil
	}
}

func mcpSuggestions(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		suggestions := deps.Suggestions
		if suggestions == nil {
			suggestions = DefaultSuggestions
		}
		count := req.GetInt("count", len(suggestions))
		if count >= 0 && count < len(suggestions) {
			suggestions = suggestions[:count]
		}

		b, err := json.Marshal(suggestions)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal suggestions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
