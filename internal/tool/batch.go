package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aidev/agentcore/pkg/types"
)

const batchDescription = `Executes multiple independent tool calls concurrently to reduce latency. Best used for gathering context (reads, searches, listings).

Payload format:
{"calls": [{"tool": "Read", "args": {"file_path": "src/index.go"}}, {"tool": "Grep", "args": {"pattern": "foo"}}]}

Rules:
- 1-10 calls per batch
- All calls start in parallel; ordering of completion is NOT guaranteed
- Partial failures do not stop the others

Disallowed tools: Batch (no nesting), Edit (run edits separately so freshness
tracking stays serialized), Task (sub-agent fan-out has its own dedicated lane).

Use for independent reads/searches; do not use for operations where one
call depends on another's output.`

const batchArgSchema = `{
	"type": "object",
	"properties": {
		"calls": {
			"type": "array",
			"description": "Tool calls to execute in parallel",
			"items": {
				"type": "object",
				"properties": {
					"tool": {"type": "string", "description": "Name of a registered tool"},
					"args": {"type": "object", "description": "Arguments for the tool"}
				},
				"required": ["tool", "args"]
			},
			"minItems": 1
		}
	},
	"required": ["calls"]
}`

// maxBatchCalls bounds one Batch invocation's fan-out, matching the
// teacher's batch.go maxBatchSize.
const maxBatchCalls = 10

// disallowedInBatch mirrors the teacher's disallowedTools set, renamed
// to this registry's capitalized tool names, plus Task: the Task tool
// has its own dedicated slot lane (spec §4.5) and must not be reached
// by an ordinary handler's nested dispatch.
var disallowedInBatch = map[string]bool{
	"Batch": true,
	"Edit":  true,
	"Task":  true,
}

type batchCall struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

type batchArgs struct {
	Calls []batchCall `json:"calls"`
}

type batchResult struct {
	Index   int    `json:"index"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
	Time    int64  `json:"time_ms"`
}

// NewBatchDescriptor builds the Batch tool over registry, grounded on
// the teacher's internal/tool/batch.go BatchTool. Each nested call's
// handler is invoked directly, bypassing the Permission Engine the
// same way the teacher's batch tool does: only Batch itself goes
// through CheckPermissions. The disallowed set below holds only Batch,
// Edit and Task; every other registered tool, including the mutating
// Write and Bash, runs inside a batch without a per-call permission
// decision.
func NewBatchDescriptor(registry *Registry) types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "Batch",
		Description:    batchDescription,
		Readonly:       false,
		Parallelizable: false,
		ArgSchema:      json.RawMessage(batchArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args batchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("batch: invalid args: %w", err)
			}
			if len(args.Calls) == 0 {
				return nil, fmt.Errorf("batch: calls must contain at least one entry")
			}

			calls := args.Calls
			var discarded []batchCall
			if len(calls) > maxBatchCalls {
				discarded = calls[maxBatchCalls:]
				calls = calls[:maxBatchCalls]
			}

			results := make([]batchResult, len(calls))
			var mu sync.Mutex
			var g errgroup.Group

			for i, call := range calls {
				i, call := i, call
				g.Go(func() error {
					r := executeBatchCall(registry, ctx, i, call)
					mu.Lock()
					results[i] = r
					mu.Unlock()
					return nil
				})
			}
			_ = g.Wait()

			for i, call := range discarded {
				results = append(results, batchResult{
					Index: maxBatchCalls + i,
					Tool:  call.Tool,
					Error: "maximum of 10 calls allowed per batch",
				})
			}

			return formatBatchResults(results), nil
		},
	}
}

func executeBatchCall(registry *Registry, parent *types.ToolContext, index int, call batchCall) (r batchResult) {
	start := time.Now()
	r = batchResult{Index: index, Tool: call.Tool}
	defer func() { r.Time = time.Since(start).Milliseconds() }()

	if disallowedInBatch[call.Tool] {
		r.Error = fmt.Sprintf("tool %q is not allowed inside a batch call", call.Tool)
		return r
	}

	desc, ok := registry.Get(call.Tool)
	if !ok {
		r.Error = fmt.Sprintf("tool %q not found", call.Tool)
		return r
	}

	callCtx := &types.ToolContext{
		Context:          parent.Context,
		AgentID:          parent.AgentID,
		ToolID:           fmt.Sprintf("%s-batch-%d", parent.ToolID, index),
		WorkingDirectory: parent.WorkingDirectory,
	}

	result, err := desc.Handler(callCtx, call.Args)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Success = true
	r.Output = result.Content
	return r
}

func formatBatchResults(results []batchResult) *types.ToolResult {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	successCount := 0
	var parts []string
	for _, r := range results {
		if r.Success {
			successCount++
			parts = append(parts, fmt.Sprintf("=== %s (success) ===\n%s", r.Tool, r.Output))
		} else {
			parts = append(parts, fmt.Sprintf("=== %s (failed) ===\n%s", r.Tool, r.Error))
		}
	}

	failed := len(results) - successCount
	summary := fmt.Sprintf("Executed %d/%d tools successfully.", successCount, len(results))
	if failed > 0 {
		summary = fmt.Sprintf("%s %d failed.", summary, failed)
	}

	return &types.ToolResult{
		Content:  summary + "\n\n" + strings.Join(parts, "\n\n"),
		Artifact: map[string]any{"total": len(results), "successful": successCount, "failed": failed, "details": results},
	}
}
