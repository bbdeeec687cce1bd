// Package prompt assembles a project's three-layer system prompt (identity,
// instructions, safety) the way internal/gateway's system_prompt.go composes
// its labeled sections into one string, generalized from a fixed set of
// config fields to the project's active PromptLayer rows.
package prompt

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/nexus-core/pkg/models"
)

// LayerStore resolves the single active PromptLayer of a given type for a
// project. Returns (nil, nil) when no layer of that type is active -- that
// is not an error, it's the condition Assemble turns into ErrNoActivePrompt.
type LayerStore interface {
	GetActive(ctx context.Context, projectID string, layerType models.PromptLayerType) (*models.PromptLayer, error)
}

// ErrNoActivePrompt is returned when any of the three required layers has no
// active version for the project.
type ErrNoActivePrompt struct {
	ProjectID string
	Missing   models.PromptLayerType
}

func (e *ErrNoActivePrompt) Error() string {
	return fmt.Sprintf("prompt: NO_ACTIVE_PROMPT: project %s has no active %s layer", e.ProjectID, e.Missing)
}

// Assembler resolves and composes a project's system prompt. The zero value
// is not usable; use NewAssembler.
type Assembler struct {
	store LayerStore
	now   func() time.Time
}

// NewAssembler creates an Assembler backed by store.
func NewAssembler(store LayerStore) *Assembler {
	return &Assembler{store: store, now: time.Now}
}

// Assemble resolves the three active layers for projectID and composes them
// into a single system prompt: identity, then instructions, then safety,
// each separated by a blank line. Any missing layer fails the whole
// assembly with ErrNoActivePrompt -- there is no partial prompt.
func (a *Assembler) Assemble(ctx context.Context, projectID string) (*models.PromptSnapshot, error) {
	if projectID == "" {
		return nil, fmt.Errorf("prompt: projectID is required")
	}

	identity, err := a.requireLayer(ctx, projectID, models.LayerIdentity)
	if err != nil {
		return nil, err
	}
	instructions, err := a.requireLayer(ctx, projectID, models.LayerInstructions)
	if err != nil {
		return nil, err
	}
	safety, err := a.requireLayer(ctx, projectID, models.LayerSafety)
	if err != nil {
		return nil, err
	}

	composed := identity.Content + "\n\n" + instructions.Content + "\n\n" + safety.Content

	return &models.PromptSnapshot{
		IdentityVersion:      identity.Version,
		InstructionsVersion:  instructions.Version,
		SafetyVersion:        safety.Version,
		ComposedSystemPrompt: composed,
		AssembledAt:          a.now(),
	}, nil
}

func (a *Assembler) requireLayer(ctx context.Context, projectID string, layerType models.PromptLayerType) (*models.PromptLayer, error) {
	layer, err := a.store.GetActive(ctx, projectID, layerType)
	if err != nil {
		return nil, fmt.Errorf("prompt: resolve %s layer: %w", layerType, err)
	}
	if layer == nil || !layer.IsActive {
		return nil, &ErrNoActivePrompt{ProjectID: projectID, Missing: layerType}
	}
	return layer, nil
}
