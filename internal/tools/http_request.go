package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/pkg/models"
)

const httpRequestInputSchema = `{
  "type": "object",
  "required": ["method", "url"],
  "properties": {
    "method": { "type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"] },
    "url": { "type": "string", "minLength": 1 },
    "headers": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    },
    "body": { "type": "string" }
  },
  "additionalProperties": false
}`

const httpRequestOutputSchema = `{
  "type": "object",
  "required": ["status_code"],
  "properties": {
    "status_code": { "type": "integer" },
    "body": { "type": "string" }
  }
}`

// HTTPRequest is a builtin tool that reaches the open network. It has side
// effects for any non-GET method and is gated behind approval accordingly.
type HTTPRequest struct {
	Client *http.Client
}

type httpRequestInput struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type httpRequestOutput struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
}

func (HTTPRequest) ID() string                   { return "http_request" }
func (HTTPRequest) Name() string                 { return "HTTP Request" }
func (HTTPRequest) Description() string          { return "Issues an HTTP request to an external URL." }
func (HTTPRequest) Category() Category           { return CategoryBuiltin }
func (HTTPRequest) InputSchema() json.RawMessage { return json.RawMessage(httpRequestInputSchema) }
func (HTTPRequest) OutputSchema() json.RawMessage { return json.RawMessage(httpRequestOutputSchema) }
func (HTTPRequest) RiskLevel() models.RiskLevel  { return models.RiskMedium }
func (HTTPRequest) RequiresApproval() bool       { return false }
func (HTTPRequest) SideEffects() bool            { return true }
func (HTTPRequest) SupportsDryRun() bool         { return true }

func (h HTTPRequest) Execute(ctx context.Context, ec ExecutionContext, input json.RawMessage) (Result, error) {
	return timed(func() (Result, error) {
		var in httpRequestInput
		if err := json.Unmarshal(input, &in); err != nil {
			return Result{Success: false, Error: err.Error()}, nexuserr.Wrap(nexuserr.CodeValidation, "invalid http_request input", err)
		}

		client := h.Client
		if client == nil {
			client = &http.Client{Timeout: 15 * time.Second}
		}

		var body io.Reader
		if in.Body != "" {
			body = strings.NewReader(in.Body)
		}
		req, err := http.NewRequestWithContext(ctx, in.Method, in.URL, body)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nexuserr.Wrap(nexuserr.CodeToolExecution, "failed to build request", err)
		}
		for k, v := range in.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nexuserr.Wrap(nexuserr.CodeToolExecution, "http_request failed", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nexuserr.Wrap(nexuserr.CodeToolExecution, "failed to read response", err)
		}

		return Result{
			Success: resp.StatusCode < 400,
			Output:  httpRequestOutput{StatusCode: resp.StatusCode, Body: string(respBody)},
		}, nil
	})
}

// DryRun never opens a connection: it reports what would be sent so a
// reviewer can approve or deny the call before any network effect occurs.
func (h HTTPRequest) DryRun(ctx context.Context, ec ExecutionContext, input json.RawMessage) (Result, error) {
	return timed(func() (Result, error) {
		var in httpRequestInput
		if err := json.Unmarshal(input, &in); err != nil {
			return Result{Success: false, Error: err.Error()}, nexuserr.Wrap(nexuserr.CodeValidation, "invalid http_request input", err)
		}
		preview := fmt.Sprintf("would send %s %s with %d header(s)", in.Method, in.URL, len(in.Headers))
		return Result{
			Success:  true,
			Output:   map[string]any{"preview": preview},
			Metadata: map[string]any{"dry_run": true},
		}, nil
	})
}
