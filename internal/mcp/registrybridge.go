package mcp

import (
	"context"
	"encoding/json"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/internal/tools"
	"github.com/nexuscore/nexus-core/pkg/models"
)

// toolBridge adapts one MCP-discovered tool onto the Tool Registry contract
// (C2). Every MCP tool is medium risk and does not require approval on its
// own — the project's allowlist is what actually gates whether it can run;
// approval, when needed, is a property the operator assigns per project,
// not something the MCP layer decides.
type toolBridge struct {
	manager  *Manager
	serverID string
	tool     *MCPTool
}

func (b *toolBridge) ID() string                { return MCPNamespaceFor(b.serverID, b.tool.Name) }
func (b *toolBridge) Name() string              { return b.tool.Name }
func (b *toolBridge) Description() string       { return b.tool.Description }
func (b *toolBridge) Category() tools.Category  { return tools.CategoryMCP }
func (b *toolBridge) OutputSchema() json.RawMessage { return nil }
func (b *toolBridge) RiskLevel() models.RiskLevel   { return models.RiskMedium }
func (b *toolBridge) RequiresApproval() bool        { return false }
func (b *toolBridge) SideEffects() bool             { return true }
func (b *toolBridge) SupportsDryRun() bool          { return false }

func (b *toolBridge) InputSchema() json.RawMessage {
	if len(b.tool.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b.tool.InputSchema
}

func (b *toolBridge) Execute(ctx context.Context, ec tools.ExecutionContext, input json.RawMessage) (tools.Result, error) {
	var arguments map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &arguments); err != nil {
			return tools.Result{Success: false, Error: err.Error()}, nexuserr.Wrap(nexuserr.CodeValidation, "invalid mcp tool input", err)
		}
	}

	result, err := b.manager.CallTool(ctx, b.serverID, b.tool.Name, arguments)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, err
	}

	content, isError := formatToolCallResult(result)
	if isError {
		return tools.Result{Success: false, Error: content}, nil
	}
	return tools.Result{Success: true, Output: content}, nil
}

// DryRun is not supported: an MCP server is free to implement tools/call
// with arbitrary effects, and the protocol has no preview-only method to
// call instead. SupportsDryRun reports false so callers never reach here.
func (b *toolBridge) DryRun(ctx context.Context, ec tools.ExecutionContext, input json.RawMessage) (tools.Result, error) {
	return tools.Result{}, nexuserr.New(nexuserr.CodeToolExecution, "mcp tools do not support dry run")
}

// MCPNamespaceFor builds the id a tool discovered from serverID is
// registered under, matching tools.MCPNamespace.
func MCPNamespaceFor(serverID, toolName string) string {
	return tools.MCPNamespace(serverID, toolName)
}

// RegisterDiscoveredTools snapshots the tool list for serverID at the
// moment it is called and registers each one into reg under its namespaced
// id. Calling it again after a Reconnect re-discovers and re-registers,
// which is how a changed tool list on the server side is picked up; the
// registry otherwise keeps serving whatever was snapshotted at connect.
func (m *Manager) RegisterDiscoveredTools(reg *tools.Registry, serverID string) error {
	client, ok := m.Client(serverID)
	if !ok {
		return nexuserr.New(nexuserr.CodeMCPConnection, "server not connected").WithContext("server_id", serverID)
	}

	for _, tool := range client.Tools() {
		bridge := &toolBridge{manager: m, serverID: serverID, tool: tool}
		reg.Unregister(bridge.ID())
		if err := reg.Register(bridge); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAllDiscoveredTools registers the discovered tools for every
// currently connected server.
func (m *Manager) RegisterAllDiscoveredTools(reg *tools.Registry) []error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := m.RegisterDiscoveredTools(reg, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
