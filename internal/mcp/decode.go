package mcp

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/adsift/internal/errors"
)

// decode maps a tool call's arguments onto the tool's request struct. Arguments of
// the wrong shape come back as INVALID_REQUEST naming the tool.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var input T
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return input, errors.NewInternal(fmt.Errorf("re-encode %s arguments: %w", toolName(req), err))
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return input, errors.NewInvalidRequest(fmt.Sprintf("%s: invalid arguments: %v", toolName(req), err))
	}
	return input, nil
}

func toolName(req mcp.CallToolRequest) string {
	if req.Params.Name == "" {
		return "tool call"
	}
	return req.Params.Name
}
