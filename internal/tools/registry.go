package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
)

// MCPNamespace builds the id a tool discovered through MCP server prefix is
// registered under: "mcp:<serverOrPrefix>:<toolName>".
func MCPNamespace(serverOrPrefix, toolName string) string {
	return fmt.Sprintf("mcp:%s:%s", serverOrPrefix, toolName)
}

// Registry holds every tool available to the runtime, builtin and
// MCP-sourced alike, keyed by its unique id.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. Re-registering an id that is already present is an
// error: ids must be unique, and a silent overwrite would let an MCP
// reconnect or a buggy plugin shadow a builtin tool without anyone noticing.
func (r *Registry) Register(t Tool) error {
	id := t.ID()
	if strings.TrimSpace(id) == "" {
		return nexuserr.New(nexuserr.CodeValidation, "tool id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[id]; exists {
		return nexuserr.New(nexuserr.CodeValidation, fmt.Sprintf("tool %q is already registered", id)).
			WithContext("tool_id", id)
	}

	if raw := t.InputSchema(); len(raw) > 0 {
		compiled, err := compileSchema(id, raw)
		if err != nil {
			return nexuserr.Wrap(nexuserr.CodeValidation, fmt.Sprintf("tool %q has an invalid input schema", id), err)
		}
		r.schemas[id] = compiled
	}

	r.tools[id] = t
	return nil
}

// Unregister removes a tool, used when an MCP server disconnects or a
// reconnect replaces its discovered tool set.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, id)
	delete(r.schemas, id)
}

// GetByID returns the tool registered under id, or false if none is.
func (r *Registry) GetByID(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// ListAll returns every registered tool, in no particular order.
func (r *Registry) ListAll() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// ListAllowed returns the tools a project's allowlist permits. An empty
// allowlist returns no tools: the Agent Runner must opt a project into
// every tool it wants, there is no implicit "all tools" default.
func (r *Registry) ListAllowed(allowedTools []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(allowedTools))
	for _, id := range allowedTools {
		if t, ok := r.tools[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Execute validates input against the tool's schema, then runs it. The
// caller is responsible for the allowlist and approval checks the turn
// loop applies before reaching here (§ turn-loop tool execution rule); by
// the time Execute runs, the decision to invoke this tool has been made.
func (r *Registry) Execute(ctx context.Context, id string, ec ExecutionContext, input json.RawMessage) (Result, error) {
	t, ok := r.GetByID(id)
	if !ok {
		return Result{}, nexuserr.New(nexuserr.CodeNotFound, fmt.Sprintf("tool %q is not registered", id)).
			WithContext("tool_id", id)
	}
	if err := r.validateInput(id, input); err != nil {
		return Result{Success: false, Error: err.Error()}, err
	}
	return t.Execute(ctx, ec, input)
}

// DryRun validates input against the tool's schema, then previews it without
// performing side effects.
func (r *Registry) DryRun(ctx context.Context, id string, ec ExecutionContext, input json.RawMessage) (Result, error) {
	t, ok := r.GetByID(id)
	if !ok {
		return Result{}, nexuserr.New(nexuserr.CodeNotFound, fmt.Sprintf("tool %q is not registered", id)).
			WithContext("tool_id", id)
	}
	if err := r.validateInput(id, input); err != nil {
		return Result{Success: false, Error: err.Error()}, err
	}
	return t.DryRun(ctx, ec, input)
}

func (r *Registry) validateInput(id string, input json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.schemas[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var payload any
	if len(input) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(input, &payload); err != nil {
		return nexuserr.Wrap(nexuserr.CodeValidation, fmt.Sprintf("tool %q input is not valid JSON", id), err)
	}
	if err := schema.Validate(payload); err != nil {
		return nexuserr.Wrap(nexuserr.CodeValidation, fmt.Sprintf("tool %q input failed schema validation", id), err)
	}
	return nil
}

func compileSchema(id string, raw json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile(id)
}
