package mcp

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/hpungsan/adsift/internal/config"
	"github.com/hpungsan/adsift/internal/errors"
	"github.com/hpungsan/adsift/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg atomic.Pointer[config.Config]
	log zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, log zerolog.Logger) *Handlers {
	h := &Handlers{db: db, log: log}
	h.cfg.Store(cfg)
	return h
}

// Config returns the configuration tool calls currently run with.
func (h *Handlers) Config() *config.Config { return h.cfg.Load() }

// UpdateConfig swaps the configuration for subsequent tool calls.
// Tool registration is fixed when the server is built.
func (h *Handlers) UpdateConfig(cfg *config.Config) {
	if cfg != nil {
		h.cfg.Store(cfg)
	}
}

// withLogger attaches the handler logger so ops can pick it up with zerolog.Ctx.
func (h *Handlers) withLogger(ctx context.Context, tool string) context.Context {
	return h.log.With().Str("tool", tool).Logger().WithContext(ctx)
}

// Request types for each tool

// KeywordsBuildRequest represents the arguments for keywords_build.
type KeywordsBuildRequest struct {
	Sources []string `json:"sources,omitempty"`
	Mode    string   `json:"mode,omitempty"`
}

// KeywordsCheckRequest represents the arguments for keywords_check.
type KeywordsCheckRequest struct {
	Sources []string `json:"sources,omitempty"`
}

// FilterHTMLRequest represents the arguments for filter_html.
type FilterHTMLRequest struct {
	HTML     string   `json:"html"`
	BaseURL  string   `json:"base_url,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	Mode     string   `json:"mode,omitempty"`
}

// HistoryListRequest represents the arguments for history_list.
type HistoryListRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// HistoryFetchRequest represents the arguments for history_fetch.
type HistoryFetchRequest struct {
	ID     string `json:"id,omitempty"`
	Latest bool   `json:"latest,omitempty"`
}

// HistoryPurgeRequest represents the arguments for history_purge.
type HistoryPurgeRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

// Handler implementations

// HandleKeywordsBuild handles the keywords_build tool call.
func (h *Handlers) HandleKeywordsBuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[KeywordsBuildRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.BuildKeywords(h.withLogger(ctx, "keywords_build"), h.db, h.Config(), ops.BuildKeywordsInput{
		Sources: input.Sources,
		Mode:    input.Mode,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleKeywordsCheck handles the keywords_check tool call.
func (h *Handlers) HandleKeywordsCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[KeywordsCheckRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(ops.CheckSources(h.Config(), ops.CheckSourcesInput{Sources: input.Sources}))
}

// HandleFilterHTML handles the filter_html tool call.
func (h *Handlers) HandleFilterHTML(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FilterHTMLRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Filter(h.withLogger(ctx, "filter_html"), h.db, h.Config(), ops.FilterInput{
		HTML:     input.HTML,
		BaseURL:  input.BaseURL,
		Keywords: input.Keywords,
		Sources:  input.Sources,
		Mode:     input.Mode,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistoryList handles the history_list tool call.
func (h *Handlers) HandleHistoryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.History(ctx, h.db, ops.HistoryInput{
		Status: input.Status,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistoryFetch handles the history_fetch tool call.
func (h *Handlers) HandleHistoryFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryFetchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.FetchRun(ctx, h.db, ops.FetchRunInput{
		ID:     input.ID,
		Latest: input.Latest,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistoryPurge handles the history_purge tool call.
func (h *Handlers) HandleHistoryPurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryPurgeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.PurgeHistory(ctx, h.db, ops.PurgeHistoryInput{
		OlderThanDays: input.OlderThanDays,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sErr *errors.SiftError
	if stderrors.As(err, &sErr) {
		msg := sErr.Message
		if sErr.Code != errors.ErrInternal && err.Error() != sErr.Error() {
			// Keep wrapper context such as "sources[1]: ...".
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": msg,
			"status":  sErr.Status,
		}
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
