package tool

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aidev/agentcore/pkg/types"
)

const grepDescription = `A powerful content search tool built on ripgrep.

Usage:
- Supports full regex syntax (e.g., "log.*Error", "function\\s+\\w+")
- Filter files with the include glob (e.g., "*.js", "*.{ts,tsx}")
- Returns matching lines with file paths and line numbers`

const grepArgSchema = `{
	"type": "object",
	"properties": {
		"pattern": {"type": "string", "description": "The regex pattern to search for in file contents"},
		"path": {"type": "string", "description": "Directory to search in (default: working directory)"},
		"include": {"type": "string", "description": "Glob of files to include, e.g. \"*.go\""}
	},
	"required": ["pattern"]
}`

const maxGrepMatches = 100

type grepArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

type grepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// NewGrepDescriptor builds the Grep tool, shelling out to ripgrep.
func NewGrepDescriptor() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "Grep",
		Description:    grepDescription,
		Readonly:       true,
		Parallelizable: true,
		ArgSchema:      json.RawMessage(grepArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args grepArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("grep: invalid args: %w", err)
			}

			rgArgs := []string{"--line-number", "--with-filename", "--color=never"}
			if args.Include != "" {
				rgArgs = append(rgArgs, "--glob", args.Include)
			}
			rgArgs = append(rgArgs, args.Pattern, resolveDir(ctx.WorkingDirectory, args.Path))

			cmd := exec.CommandContext(ctx.Context, "rg", rgArgs...)
			output, _ := cmd.Output()

			if len(output) == 0 {
				return &types.ToolResult{Content: "no matches found", Artifact: map[string]any{"count": 0}}, nil
			}

			var matches []grepMatch
			for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
				parts := strings.SplitN(line, ":", 3)
				if len(parts) < 3 {
					continue
				}
				lineNum, _ := strconv.Atoi(parts[1])
				matches = append(matches, grepMatch{File: parts[0], Line: lineNum, Content: parts[2]})
			}

			truncated := false
			if len(matches) > maxGrepMatches {
				matches = matches[:maxGrepMatches]
				truncated = true
			}

			var sb strings.Builder
			for _, m := range matches {
				fmt.Fprintf(&sb, "%s:%d: %s\n", m.File, m.Line, m.Content)
			}
			if truncated {
				fmt.Fprintf(&sb, "\n(showing %d of more matches)\n", maxGrepMatches)
			}

			return &types.ToolResult{
				Content:  sb.String(),
				Artifact: map[string]any{"matches": matches, "count": len(matches), "truncated": truncated},
			}, nil
		},
	}
}
