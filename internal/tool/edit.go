package tool

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/aidev/agentcore/internal/freshness"
	"github.com/aidev/agentcore/pkg/types"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- The file_path parameter must be an absolute path
- The old_string must exist in the file (exact match preferred; falls
  back to line-ending-normalized and fuzzy matching)
- The new_string will replace old_string
- Use replace_all to replace all occurrences
- The edit will fail if old_string is not unique unless replace_all is set`

const editArgSchema = `{
	"type": "object",
	"properties": {
		"file_path": {"type": "string", "description": "The absolute path to the file to edit"},
		"old_string": {"type": "string", "description": "The exact text to replace"},
		"new_string": {"type": "string", "description": "The text to replace it with"},
		"replace_all": {"type": "boolean", "description": "Replace all occurrences (default: false)"}
	},
	"required": ["file_path", "old_string", "new_string"]
}`

type editArgs struct {
	FilePath   string `json:"file_path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

const fuzzyMatchThreshold = 0.7

// NewEditDescriptor builds the Edit tool over tracker (spec §4.3: a file
// must have been read, or agent-edited with no external change since,
// before it can be edited).
func NewEditDescriptor(tracker *freshness.Tracker) types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "Edit",
		Description:    editDescription,
		Readonly:       false,
		Parallelizable: false,
		ArgSchema:      json.RawMessage(editArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args editArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("edit: invalid args: %w", err)
			}
			if args.OldString == args.NewString {
				return nil, fmt.Errorf("edit: old_string and new_string must differ")
			}

			if needsRead, reason := tracker.Check(args.FilePath); needsRead {
				return nil, &types.FreshnessViolation{Path: args.FilePath, Reason: reason}
			}

			content, err := os.ReadFile(args.FilePath)
			if err != nil {
				return nil, fmt.Errorf("edit: %w", err)
			}
			before := string(content)

			after, count, note, err := replace(before, args.OldString, args.NewString, args.ReplaceAll)
			if err != nil {
				return nil, fmt.Errorf("edit: %w", err)
			}

			if err := os.WriteFile(args.FilePath, []byte(after), 0o644); err != nil {
				return nil, fmt.Errorf("edit: %w", err)
			}
			tracker.UpdateAgentEdit(args.FilePath)

			diffText, additions, deletions := buildDiffMetadata(args.FilePath, before, after, ctx.WorkingDirectory)
			return &types.ToolResult{
				Content: fmt.Sprintf("replaced %d occurrence(s)%s", count, note),
				Artifact: map[string]any{
					"file":      args.FilePath,
					"diff":      diffText,
					"additions": additions,
					"deletions": deletions,
				},
			}, nil
		},
	}
}

// replace applies the edit, falling back from exact match to line-ending
// normalization to fuzzy matching, in that order (grounded on the
// teacher's EditTool.fuzzyReplace).
func replace(text, oldString, newString string, replaceAll bool) (after string, count int, note string, err error) {
	if n := strings.Count(text, oldString); n > 0 {
		if replaceAll {
			return strings.ReplaceAll(text, oldString, newString), n, "", nil
		}
		if n > 1 {
			return "", 0, "", fmt.Errorf("old_string appears %d times; use replace_all or add more context", n)
		}
		return strings.Replace(text, oldString, newString, 1), 1, "", nil
	}

	normalizedText := normalizeLineEndings(text)
	normalizedOld := normalizeLineEndings(oldString)
	if strings.Contains(normalizedText, normalizedOld) {
		return strings.Replace(normalizedText, normalizedOld, newString, 1), 1, " (line-ending normalized)", nil
	}

	match, sim := findBestMatch(text, oldString)
	if match != "" && sim >= fuzzyMatchThreshold {
		return strings.Replace(text, match, newString, 1), 1, fmt.Sprintf(" (%.0f%% fuzzy match)", sim*100), nil
	}

	return "", 0, "", fmt.Errorf("old_string not found in file")
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// findBestMatch searches text for the line (or, for a multi-line target,
// the contiguous block) most similar to target by normalized Levenshtein
// distance.
func findBestMatch(text, target string) (string, float64) {
	lines := strings.Split(text, "\n")
	targetLines := strings.Split(target, "\n")

	if len(targetLines) == 1 {
		bestMatch, bestSim := "", 0.0
		for _, line := range lines {
			if sim := similarity(line, target); sim > bestSim {
				bestSim, bestMatch = sim, line
			}
		}
		return bestMatch, bestSim
	}

	targetLen := len(targetLines)
	bestMatch, bestSim := "", 0.0
	for i := 0; i <= len(lines)-targetLen; i++ {
		block := strings.Join(lines[i:i+targetLen], "\n")
		if sim := similarity(block, target); sim > bestSim {
			bestSim, bestMatch = sim, block
		}
	}
	return bestMatch, bestSim
}

// similarity is normalized Levenshtein similarity in [0,1].
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if len(a) > 10000 || len(b) > 10000 {
		minLen := len(a)
		if len(b) < minLen {
			minLen = len(b)
		}
		return float64(minLen) / float64(maxLen)
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}
