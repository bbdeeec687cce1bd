package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/pkg/models"
)

const calculatorInputSchema = `{
  "type": "object",
  "required": ["operation", "a", "b"],
  "properties": {
    "operation": { "type": "string", "enum": ["add", "subtract", "multiply", "divide"] },
    "a": { "type": "number" },
    "b": { "type": "number" }
  },
  "additionalProperties": false
}`

const calculatorOutputSchema = `{
  "type": "object",
  "required": ["result"],
  "properties": {
    "result": { "type": "number" }
  }
}`

// Calculator is a low-risk builtin tool with no side effects, used across
// the end-to-end scenarios as the simplest possible tool-use round trip.
type Calculator struct{}

type calculatorInput struct {
	Operation string  `json:"operation"`
	A         float64 `json:"a"`
	B         float64 `json:"b"`
}

type calculatorOutput struct {
	Result float64 `json:"result"`
}

func (Calculator) ID() string                   { return "calculator" }
func (Calculator) Name() string                 { return "Calculator" }
func (Calculator) Description() string          { return "Performs a single arithmetic operation on two numbers." }
func (Calculator) Category() Category           { return CategoryBuiltin }
func (Calculator) InputSchema() json.RawMessage { return json.RawMessage(calculatorInputSchema) }
func (Calculator) OutputSchema() json.RawMessage { return json.RawMessage(calculatorOutputSchema) }
func (Calculator) RiskLevel() models.RiskLevel  { return models.RiskLow }
func (Calculator) RequiresApproval() bool       { return false }
func (Calculator) SideEffects() bool            { return false }
func (Calculator) SupportsDryRun() bool         { return true }

func (c Calculator) Execute(ctx context.Context, ec ExecutionContext, input json.RawMessage) (Result, error) {
	return timed(func() (Result, error) {
		out, err := c.compute(input)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, err
		}
		return Result{Success: true, Output: out}, nil
	})
}

// DryRun is identical to Execute: a pure arithmetic tool has nothing to
// preview that differs from actually running it.
func (c Calculator) DryRun(ctx context.Context, ec ExecutionContext, input json.RawMessage) (Result, error) {
	return c.Execute(ctx, ec, input)
}

func (Calculator) compute(input json.RawMessage) (calculatorOutput, error) {
	var in calculatorInput
	if err := json.Unmarshal(input, &in); err != nil {
		return calculatorOutput{}, nexuserr.Wrap(nexuserr.CodeValidation, "invalid calculator input", err)
	}

	switch in.Operation {
	case "add":
		return calculatorOutput{Result: in.A + in.B}, nil
	case "subtract":
		return calculatorOutput{Result: in.A - in.B}, nil
	case "multiply":
		return calculatorOutput{Result: in.A * in.B}, nil
	case "divide":
		if in.B == 0 {
			return calculatorOutput{}, nexuserr.New(nexuserr.CodeToolExecution, "division by zero")
		}
		return calculatorOutput{Result: in.A / in.B}, nil
	default:
		return calculatorOutput{}, nexuserr.New(nexuserr.CodeValidation, fmt.Sprintf("unknown operation %q", in.Operation))
	}
}
