package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
)

// classifyConnectError wraps a Connect/transport failure into the MCP
// connection error class.
func classifyConnectError(serverID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
		return nexuserr.Wrap(nexuserr.CodeMCPTimeout, "mcp connect timed out", err).
			WithContext("server_id", serverID)
	}
	return nexuserr.Wrap(nexuserr.CodeMCPConnection, "mcp connect failed", err).
		WithContext("server_id", serverID)
}

// classifyToolCallError wraps a CallTool failure into the MCP tool
// execution or timeout error class.
func classifyToolCallError(serverID, toolName string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
		return nexuserr.Wrap(nexuserr.CodeMCPTimeout, "mcp tool call timed out", err).
			WithContext("server_id", serverID, "tool", toolName)
	}
	return nexuserr.Wrap(nexuserr.CodeMCPToolExecution, "mcp tool call failed", err).
		WithContext("server_id", serverID, "tool", toolName)
}
