package tool

import (
	"encoding/json"
	"fmt"

	"github.com/aidev/agentcore/pkg/types"
)

// TaskExecutor runs one sub-agent invocation to completion and returns
// its final assistant text (spec §4.9). Implemented by
// internal/subagent, which constructs and drives the child Agent
// Runner; this package only needs the narrow interface, breaking the
// tool <-> agent import cycle the same way the teacher's
// TaskExecutor/executor.SubagentExecutor split does.
type TaskExecutor interface {
	ExecuteSubtask(ctx *types.ToolContext, agentName, prompt string) (string, error)
}

// TaskArgs is the Task tool's argument shape (spec §4.9):
// {description, prompt, agent_name}.
type TaskArgs struct {
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	AgentName   string `json:"agent_name"`
}

const taskDescription = `Launch a sub-agent to handle a complex, multi-step task autonomously. The sub-agent runs with its own restricted tool set and cannot itself launch further sub-agents.`

const taskArgSchema = `{
	"type": "object",
	"properties": {
		"description": {"type": "string", "description": "A short (3-5 word) description of the task"},
		"prompt": {"type": "string", "description": "The detailed task for the agent to perform"},
		"agent_name": {"type": "string", "description": "Name of the sub-agent descriptor to run"}
	},
	"required": ["description", "prompt", "agent_name"]
}`

// NewTaskDescriptor builds the Task tool's ToolDescriptor over
// executor. It is parallelizable so several Task calls in one turn can
// occupy concurrent slots (spec §4.5, §4.9.5).
func NewTaskDescriptor(executor TaskExecutor) types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           TaskToolName,
		Description:    taskDescription,
		Readonly:       false,
		Parallelizable: true,
		ArgSchema:      json.RawMessage(taskArgSchema),
		Handler: func(ctx *types.ToolContext, args json.RawMessage) (*types.ToolResult, error) {
			var params TaskArgs
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("task: invalid args: %w", err)
			}
			if params.AgentName == "" {
				return nil, fmt.Errorf("task: agent_name is required")
			}
			if params.Prompt == "" {
				return nil, fmt.Errorf("task: prompt is required")
			}

			if ctx.OnDelta != nil {
				ctx.OnDelta(fmt.Sprintf("launching %s: %s", params.AgentName, params.Description))
			}

			output, err := executor.ExecuteSubtask(ctx, params.AgentName, params.Prompt)
			if err != nil {
				return nil, err
			}
			return &types.ToolResult{Content: output}, nil
		},
	}
}
