package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question       string   `json:"question" jsonschema:"the question to answer from the knowledge base"`
	TopK           *int     `json:"top_k,omitempty" jsonschema:"number of chunks to retrieve (1-20, default 5)"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty" jsonschema:"minimum similarity score (0-1, default 0.5)"`
	UseContext     *bool    `json:"use_context,omitempty" jsonschema:"answer from retrieved context (default true)"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer          string             `json:"answer"`
	Model           string             `json:"model_used"`
	ChunksRetrieved int                `json:"chunks_retrieved"`
	AvgSimilarity   float64            `json:"avg_similarity"`
	ResponseTime    float64            `json:"response_time"`
	Sources         []SearchResultItem `json:"sources"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query          string   `json:"query" jsonschema:"the text to search for"`
	TopK           *int     `json:"top_k,omitempty" jsonschema:"maximum number of results (1-20, default 5)"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty" jsonschema:"minimum similarity score (0-1, default 0.3)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultItem `json:"results"`
	Count   int                `json:"count"`
}

// SearchResultItem represents a single retrieved chunk.
type SearchResultItem struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title,omitempty"`
	ChunkIndex    int     `json:"chunk_index"`
	Score         float64 `json:"score"`
	Text          string  `json:"text"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using the documents in the knowledge base",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Find the chunks most similar to a query",
	}, s.handleSearch)
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	ans, err := s.ports.Answer.Answer(ctx, domain.QueryRequest{
		Question:       input.Question,
		TopK:           input.TopK,
		ScoreThreshold: input.ScoreThreshold,
		UseContext:     input.UseContext,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:          ans.Answer,
		Model:           ans.Model,
		ChunksRetrieved: ans.ChunksRetrieved,
		AvgSimilarity:   ans.AvgSimilarity,
		ResponseTime:    ans.ResponseSeconds(),
		Sources:         make([]SearchResultItem, len(ans.ChunksUsed)),
	}
	for i, c := range ans.ChunksUsed {
		output.Sources[i] = SearchResultItem{
			DocumentID:    c.DocumentID,
			DocumentTitle: c.DocumentTitle,
			ChunkIndex:    c.ChunkIndex,
			Score:         c.Score,
			Text:          c.Text,
		}
	}

	return nil, output, nil
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	resp, err := s.ports.Search.Search(ctx, domain.SearchRequest{
		Query:          input.Query,
		TopK:           input.TopK,
		ScoreThreshold: input.ScoreThreshold,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultItem, len(resp.Results)),
		Count:   len(resp.Results),
	}
	for i := range resp.Results {
		r := &resp.Results[i]
		output.Results[i] = SearchResultItem{
			DocumentID:    r.Chunk.DocumentID,
			DocumentTitle: r.DocumentTitle,
			ChunkIndex:    r.Chunk.Index,
			Score:         r.Score,
			Text:          r.Chunk.Text,
		}
	}

	return nil, output, nil
}
