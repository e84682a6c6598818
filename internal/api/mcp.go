package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/finsight/finsight/internal/service"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Knowledge *service.Knowledge
}

// NewMCPServer creates an MCP server exposing the knowledge base tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"finsight",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("finsight — local document knowledge base for retrieval-augmented question answering."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_document",
			mcp.WithDescription("Index a document's text into the knowledge base for later retrieval."),
			mcp.WithString("content", mcp.Description("The document text to index"), mcp.Required()),
			mcp.WithString("file_name", mcp.Description("Optional source name used to identify the document")),
		),
		mcpAddDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_question",
			mcp.WithDescription("Ask a question against the indexed documents and get an answer with sources."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of source chunks to retrieve (default 5)")),
		),
		mcpAskQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("knowledge_stats",
			mcp.WithDescription("Report the number of indexed chunks and the embedding dimensionality."),
		),
		mcpKnowledgeStats(deps),
	)

	return s
}

func mcpAddDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		var metadata map[string]string
		if name := req.GetString("file_name", ""); name != "" {
			metadata = map[string]string{"file_name": name}
		}

		added, err := deps.Knowledge.AddDocument(ctx, content, metadata)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to index document: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Indexed %d chunks", added)), nil
	}
}

func mcpAskQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		topK := req.GetInt("top_k", 0)
		if topK > 50 {
			topK = 50
		}

		result, err := deps.Knowledge.Answer(ctx, question, topK, -1)
		if err != nil {
			return mcpError(fmt.Sprintf("question failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpKnowledgeStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Knowledge.Stats())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
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
