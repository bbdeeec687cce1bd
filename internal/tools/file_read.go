package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
	"github.com/nexuscore/nexus-core/pkg/models"
)

const fileReadInputSchema = `{
  "type": "object",
  "required": ["path"],
  "properties": {
    "path": { "type": "string", "description": "Path to the file, relative to the workspace root." },
    "offset": { "type": "integer", "minimum": 0, "description": "Byte offset to start reading from." },
    "max_bytes": { "type": "integer", "minimum": 0, "description": "Maximum bytes to read, capped by the tool's own limit." }
  },
  "additionalProperties": false
}`

const fileReadOutputSchema = `{
  "type": "object",
  "required": ["path", "content", "bytes", "truncated"],
  "properties": {
    "path": { "type": "string" },
    "content": { "type": "string" },
    "offset": { "type": "integer" },
    "bytes": { "type": "integer" },
    "truncated": { "type": "boolean" }
  }
}`

// fileResolver keeps every file tool confined to a workspace root: any path
// that would escape it, absolute or via "..", is rejected before the
// filesystem is ever touched.
type fileResolver struct {
	root string
}

func (r fileResolver) resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	root := strings.TrimSpace(r.root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return targetAbs, nil
}

// FileRead is a read-only builtin tool confined to a workspace directory.
// It has no side effects, so DryRun is identical to Execute.
type FileRead struct {
	Workspace    string
	MaxReadBytes int
}

type fileReadInput struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
	MaxBytes int    `json:"max_bytes"`
}

type fileReadOutput struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Offset    int64  `json:"offset"`
	Bytes     int    `json:"bytes"`
	Truncated bool   `json:"truncated"`
}

func (FileRead) ID() string                   { return "file_read" }
func (FileRead) Name() string                 { return "Read File" }
func (FileRead) Description() string          { return "Reads a file from the workspace with an optional offset and byte limit." }
func (FileRead) Category() Category           { return CategoryBuiltin }
func (FileRead) InputSchema() json.RawMessage { return json.RawMessage(fileReadInputSchema) }
func (FileRead) OutputSchema() json.RawMessage { return json.RawMessage(fileReadOutputSchema) }
func (FileRead) RiskLevel() models.RiskLevel  { return models.RiskLow }
func (FileRead) RequiresApproval() bool       { return false }
func (FileRead) SideEffects() bool            { return false }
func (FileRead) SupportsDryRun() bool         { return true }

func (f FileRead) Execute(ctx context.Context, ec ExecutionContext, input json.RawMessage) (Result, error) {
	return timed(func() (Result, error) {
		var in fileReadInput
		if err := json.Unmarshal(input, &in); err != nil {
			return Result{Success: false, Error: err.Error()}, nexuserr.Wrap(nexuserr.CodeValidation, "invalid file_read input", err)
		}
		if in.Offset < 0 {
			err := nexuserr.New(nexuserr.CodeValidation, "offset must be >= 0")
			return Result{Success: false, Error: err.Error()}, err
		}

		resolved, err := fileResolver{root: f.Workspace}.resolve(in.Path)
		if err != nil {
			werr := nexuserr.Wrap(nexuserr.CodeValidation, "invalid path", err)
			return Result{Success: false, Error: werr.Error()}, werr
		}

		file, err := os.Open(resolved)
		if err != nil {
			werr := nexuserr.Wrap(nexuserr.CodeToolExecution, "open file", err)
			return Result{Success: false, Error: werr.Error()}, werr
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			werr := nexuserr.Wrap(nexuserr.CodeToolExecution, "stat file", err)
			return Result{Success: false, Error: werr.Error()}, werr
		}

		if in.Offset > 0 {
			if _, err := file.Seek(in.Offset, io.SeekStart); err != nil {
				werr := nexuserr.Wrap(nexuserr.CodeToolExecution, "seek file", err)
				return Result{Success: false, Error: werr.Error()}, werr
			}
		}

		limit := f.MaxReadBytes
		if limit <= 0 {
			limit = 200000
		}
		if in.MaxBytes > 0 && in.MaxBytes < limit {
			limit = in.MaxBytes
		}

		remaining := int64(limit)
		if size := info.Size(); size > 0 {
			remaining = size - in.Offset
			if remaining < 0 {
				remaining = 0
			}
			if remaining > int64(limit) {
				remaining = int64(limit)
			}
		}

		buf, err := io.ReadAll(io.LimitReader(file, remaining))
		if err != nil {
			werr := nexuserr.Wrap(nexuserr.CodeToolExecution, "read file", err)
			return Result{Success: false, Error: werr.Error()}, werr
		}

		truncated := info.Size() > 0 && in.Offset+int64(len(buf)) < info.Size()

		return Result{
			Success: true,
			Output: fileReadOutput{
				Path:      in.Path,
				Content:   string(buf),
				Offset:    in.Offset,
				Bytes:     len(buf),
				Truncated: truncated,
			},
		}, nil
	})
}

// DryRun is identical to Execute: reading a file has no side effect to preview.
func (f FileRead) DryRun(ctx context.Context, ec ExecutionContext, input json.RawMessage) (Result, error) {
	return f.Execute(ctx, ec, input)
}
