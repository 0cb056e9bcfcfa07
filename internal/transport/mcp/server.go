// Package mcp exposes the composition root's orchestrators as a Model
// Context Protocol tool surface, grounded on the mark3labs/mcp-go tool
// registration idiom (mcp.NewTool/server.AddTool/mcp.NewToolResultText)
// seen across the retrieval pack's RAG-adjacent MCP servers.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fabfab/convo-rag/internal/composition"
	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ingest"
	"github.com/fabfab/convo-rag/internal/rag"
	"github.com/fabfab/convo-rag/internal/search"
)

// New builds an MCP server exposing search, ingest, conversation, and RAG
// tools backed by app.
func New(app *composition.App) *server.MCPServer {
	s := server.NewMCPServer(
		"convo-rag",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	registerTools(s, app)
	return s
}

func registerTools(s *server.MCPServer, app *composition.App) {
	s.AddTool(mcp.NewTool("search_conversations",
		mcp.WithDescription("Semantic search over ingested conversation chunks. Returns the top-k chunks ranked by relevance, each with a score in [0,1]."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query text")),
		mcp.WithNumber("top_k", mcp.Description("Number of results to return (default 5)")),
		mcp.WithNumber("min_score", mcp.Description("Minimum relevance score to include (default 0.7)")),
	), handleSearch(app))

	s.AddTool(mcp.NewTool("ingest_conversation",
		mcp.WithDescription("Ingest a conversation transcript: chunk, embed, and persist it so it becomes searchable and citable."),
		mcp.WithArray("messages", mcp.Required(),
			mcp.Description("Array of {author_name, author_type, text, timestamp?} objects, in chronological order")),
		mcp.WithString("scenario_title", mcp.Description("Optional human-readable title for the conversation")),
	), handleIngest(app))

	s.AddTool(mcp.NewTool("get_conversations",
		mcp.WithDescription("List ingested conversations with pagination."),
		mcp.WithNumber("skip", mcp.Description("Number of conversations to skip (default 0)")),
		mcp.WithNumber("limit", mcp.Description("Maximum conversations to return (default 20)")),
	), handleListConversations(app))

	s.AddTool(mcp.NewTool("get_conversation",
		mcp.WithDescription("Fetch one conversation by ID, including its chunks."),
		mcp.WithNumber("conversation_id", mcp.Required(), mcp.Description("The conversation's numeric ID")),
	), handleGetConversation(app))

	s.AddTool(mcp.NewTool("delete_conversation",
		mcp.WithDescription("Delete a conversation and its chunks."),
		mcp.WithNumber("conversation_id", mcp.Required(), mcp.Description("The conversation's numeric ID")),
	), handleDeleteConversation(app))

	s.AddTool(mcp.NewTool("rag_ask",
		mcp.WithDescription("Answer a question grounded in ingested conversations, with [Source N] citations and a confidence score."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithNumber("top_k", mcp.Description("Number of sources to retrieve (default 5)")),
		mcp.WithNumber("min_score", mcp.Description("Minimum source relevance to consider (default 0.7)")),
	), handleRAGAsk(app))
}

func handleSearch(app *composition.App) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		query, _ := args["query"].(string)
		if query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}

		req := search.Request{Query: query, TopK: intArg(args, "top_k", 5)}
		if v, ok := args["min_score"].(float64); ok {
			score := domain.RelevanceScore(v)
			req.Filters.MinScore = &score
		}

		resp, err := app.Search.Search(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(domain.MessageOf(err)), nil
		}

		encoded, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(encoded)), nil
	}
}

func handleIngest(app *composition.App) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		rawMessages, ok := args["messages"]
		if !ok {
			return mcp.NewToolResultError("messages parameter is required"), nil
		}

		encoded, err := json.Marshal(rawMessages)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid messages format: %v", err)), nil
		}

		var inputs []struct {
			AuthorName string     `json:"author_name"`
			AuthorType string     `json:"author_type"`
			Text       string     `json:"text"`
			Timestamp  *time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal(encoded, &inputs); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse messages: %v", err)), nil
		}

		messages := make([]ingest.InputMessage, len(inputs))
		for i, m := range inputs {
			author, err := domain.NewAuthorInfo(m.AuthorName, domain.AuthorType(m.AuthorType))
			if err != nil {
				return mcp.NewToolResultError(domain.MessageOf(err)), nil
			}
			messages[i] = ingest.InputMessage{Author: author, Text: m.Text, Timestamp: m.Timestamp}
		}

		req := ingest.Request{Messages: messages}
		if title, ok := args["scenario_title"].(string); ok && title != "" {
			req.ScenarioTitle = &title
		}

		resp, err := app.Ingest.Ingest(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(domain.MessageOf(err)), nil
		}

		resultJSON, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func handleListConversations(app *composition.App) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		conversations, err := app.Conversations.List(ctx, intArg(args, "skip", 0), intArg(args, "limit", 20))
		if err != nil {
			return mcp.NewToolResultError(domain.MessageOf(err)), nil
		}
		encoded, err := json.Marshal(conversations)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(encoded)), nil
	}
}

func handleGetConversation(app *composition.App) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		id, ok := args["conversation_id"].(float64)
		if !ok {
			return mcp.NewToolResultError("conversation_id parameter is required"), nil
		}

		conv, err := app.Conversations.GetByID(ctx, int64(id))
		if err != nil {
			return mcp.NewToolResultError(domain.MessageOf(err)), nil
		}
		if conv == nil {
			return mcp.NewToolResultError(fmt.Sprintf("conversation %d not found", int64(id))), nil
		}

		encoded, err := json.Marshal(conv)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(encoded)), nil
	}
}

func handleDeleteConversation(app *composition.App) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		id, ok := args["conversation_id"].(float64)
		if !ok {
			return mcp.NewToolResultError("conversation_id parameter is required"), nil
		}

		deleted, err := app.Conversations.Delete(ctx, int64(id))
		if err != nil {
			return mcp.NewToolResultError(domain.MessageOf(err)), nil
		}
		if !deleted {
			return mcp.NewToolResultError(fmt.Sprintf("conversation %d not found", int64(id))), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(`{"deleted": true, "conversation_id": %d}`, int64(id))), nil
	}
}

func handleRAGAsk(app *composition.App) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		query, _ := args["query"].(string)
		if query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}

		params := rag.Params{TopK: intArg(args, "top_k", 0)}
		if v, ok := args["min_score"].(float64); ok {
			params.MinScore = domain.RelevanceScore(v)
		}

		answer, err := app.RAG.Ask(ctx, rag.Request{Query: query, Params: params})
		if err != nil {
			return mcp.NewToolResultError(domain.MessageOf(err)), nil
		}

		encoded, err := json.Marshal(answer)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(encoded)), nil
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}
