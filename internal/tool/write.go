package tool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aidev/agentcore/internal/freshness"
	"github.com/aidev/agentcore/pkg/types"
)

const writeDescription = `Writes content to a file on the local filesystem.

Usage:
- The file_path parameter must be an absolute path
- This tool will overwrite existing files
- Parent directories will be created if they don't exist
- ALWAYS prefer editing existing files over creating new ones
- If the file already exists and hasn't been read in this turn, the write
  is refused until it has been`

const writeArgSchema = `{
	"type": "object",
	"properties": {
		"file_path": {"type": "string", "description": "The absolute path to the file to write"},
		"content": {"type": "string", "description": "The content to write to the file"}
	},
	"required": ["file_path", "content"]
}`

type writeArgs struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// NewWriteDescriptor builds the Write tool. tracker enforces the
// freshness invariant (spec §4.3): overwriting a file that exists but
// was never read (or was read or agent-edited but has since changed
// externally) is refused with a FreshnessViolation rather than silently
// clobbering it.
func NewWriteDescriptor(tracker *freshness.Tracker) types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "Write",
		Description:    writeDescription,
		Readonly:       false,
		Parallelizable: false,
		ArgSchema:      json.RawMessage(writeArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args writeArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("write: invalid args: %w", err)
			}

			var before string
			if existing, err := os.ReadFile(args.FilePath); err == nil {
				before = string(existing)
				if needsRead, reason := tracker.Check(args.FilePath); needsRead {
					return nil, &types.FreshnessViolation{Path: args.FilePath, Reason: reason}
				}
			}

			if dir := filepath.Dir(args.FilePath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("write: %w", err)
				}
			}
			if err := os.WriteFile(args.FilePath, []byte(args.Content), 0o644); err != nil {
				return nil, fmt.Errorf("write: %w", err)
			}

			tracker.UpdateAgentEdit(args.FilePath)

			diffText, additions, deletions := buildDiffMetadata(args.FilePath, before, args.Content, ctx.WorkingDirectory)
			return &types.ToolResult{
				Content: fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.FilePath),
				Artifact: map[string]any{
					"file":      args.FilePath,
					"bytes":     len(args.Content),
					"diff":      diffText,
					"additions": additions,
					"deletions": deletions,
				},
			}, nil
		},
	}
}
