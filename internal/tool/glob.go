package tool

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aidev/agentcore/pkg/types"
)

const globDescription = `Fast file pattern matching tool that works with any codebase size.

Usage:
- Supports glob patterns like "**/*.js" or "src/**/*.ts"
- Returns matching file paths
- Use this tool when you need to find files by name patterns`

const globArgSchema = `{
	"type": "object",
	"properties": {
		"pattern": {"type": "string", "description": "The glob pattern to match files against"},
		"path": {"type": "string", "description": "Directory to search in (default: working directory)"}
	},
	"required": ["pattern"]
}`

const maxGlobResults = 100

type globArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// NewGlobDescriptor builds the Glob tool, shelling out to ripgrep's file
// enumerator the same way the teacher does.
func NewGlobDescriptor() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "Glob",
		Description:    globDescription,
		Readonly:       true,
		Parallelizable: true,
		ArgSchema:      json.RawMessage(globArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args globArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("glob: invalid args: %w", err)
			}

			searchDir := resolveDir(ctx.WorkingDirectory, args.Path)

			cmd := exec.CommandContext(ctx.Context, "rg", "--files", "--glob", args.Pattern)
			cmd.Dir = searchDir
			output, _ := cmd.Output()

			files := splitNonEmpty(string(output))
			truncated := false
			if len(files) > maxGlobResults {
				files = files[:maxGlobResults]
				truncated = true
			}

			text := strings.Join(files, "\n")
			if len(files) == 0 {
				text = "no files matched the pattern"
			} else if truncated {
				text += fmt.Sprintf("\n\n(showing %d of more files)", maxGlobResults)
			}

			return &types.ToolResult{
				Content:  text,
				Artifact: map[string]any{"pattern": args.Pattern, "count": len(files), "truncated": truncated},
			}, nil
		},
	}
}

func resolveDir(workDir, path string) string {
	if path == "" {
		return workDir
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
