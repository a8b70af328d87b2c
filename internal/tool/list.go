package tool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aidev/agentcore/pkg/types"
)

const listDescription = `Lists files and directories in a specified path.

Usage:
- Returns file names, types (file/directory), and sizes
- Useful for exploring directory structure`

const listArgSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "The directory to list (default: working directory)"},
		"ignore": {"type": "array", "items": {"type": "string"}, "description": "Glob patterns to ignore"}
	}
}`

type listArgs struct {
	Path   string   `json:"path,omitempty"`
	Ignore []string `json:"ignore,omitempty"`
}

type fileEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

var defaultIgnorePatterns = []string{
	"node_modules/", "__pycache__/", ".git/", "dist/", "build/", "target/",
	"vendor/", "bin/", "obj/", ".idea/", ".vscode/", ".cache/", "tmp/", "temp/",
}

// NewListDescriptor builds the List tool.
func NewListDescriptor() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "List",
		Description:    listDescription,
		Readonly:       true,
		Parallelizable: true,
		ArgSchema:      json.RawMessage(listArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args listArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("list: invalid args: %w", err)
			}

			dir := resolveDir(ctx.WorkingDirectory, args.Path)
			patterns := append(append([]string{}, defaultIgnorePatterns...), args.Ignore...)

			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil, fmt.Errorf("list: %w", err)
			}

			var files []fileEntry
			for _, entry := range entries {
				if shouldIgnore(entry.Name(), entry.IsDir(), patterns) {
					continue
				}
				info, _ := entry.Info()
				var size int64
				if info != nil {
					size = info.Size()
				}
				files = append(files, fileEntry{Name: entry.Name(), IsDir: entry.IsDir(), Size: size})
			}

			var sb strings.Builder
			for _, f := range files {
				kind := "file"
				if f.IsDir {
					kind = "dir "
				}
				fmt.Fprintf(&sb, "[%s] %s", kind, f.Name)
				if !f.IsDir {
					fmt.Fprintf(&sb, " (%d bytes)", f.Size)
				}
				sb.WriteString("\n")
			}

			return &types.ToolResult{
				Content:  sb.String(),
				Artifact: map[string]any{"path": dir, "count": len(files)},
			}, nil
		},
	}
}

func shouldIgnore(name string, isDir bool, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			if isDir && name == strings.TrimSuffix(pattern, "/") {
				return true
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
