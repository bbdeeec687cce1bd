package models

import "time"

// PromptLayerType names one of the three composable prompt fragments.
type PromptLayerType string

const (
	LayerIdentity     PromptLayerType = "identity"
	LayerInstructions PromptLayerType = "instructions"
	LayerSafety       PromptLayerType = "safety"
)

// PromptLayer is an immutable, versioned fragment of a project's system
// prompt. (ProjectID, LayerType, Version) is unique; Version auto-increments
// per (ProjectID, LayerType). At most one layer per (ProjectID, LayerType) is
// active at any time.
type PromptLayer struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	LayerType    PromptLayerType `json:"layer_type"`
	Version      int             `json:"version"`
	Content      string          `json:"content"`
	IsActive     bool            `json:"is_active"`
	CreatedBy    string          `json:"created_by"`
	ChangeReason string          `json:"change_reason"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PromptSnapshot captures the exact versions of the three active layers at
// turn start, persisted into the ExecutionTrace for audit.
type PromptSnapshot struct {
	IdentityVersion     int       `json:"identity_version"`
	InstructionsVersion int       `json:"instructions_version"`
	SafetyVersion       int       `json:"safety_version"`
	ComposedSystemPrompt string   `json:"composed_system_prompt"`
	AssembledAt         time.Time `json:"assembled_at"`
}
