package types

import (
	"context"
	"encoding/json"
)

// ToolResult is the outcome of a successful tool invocation (spec §6,
// tool handler contract).
type ToolResult struct {
	Content  string
	Artifact any
}

// ToolContext is passed to every tool handler invocation. TaskID and
// NodeIndex are set only when the call executes inside a sub-agent
// (Task tool) fan-out slot.
type ToolContext struct {
	Context          context.Context
	AgentID          string
	ToolID           string
	WorkingDirectory string
	TaskID           string
	NodeIndex        int

	// OnDelta, if non-nil, lets a handler emit tool_delta progress
	// through the injected Stream Writer without importing the stream
	// package directly.
	OnDelta func(message string)
}

// ToolHandler is the function half of a ToolDescriptor (spec §9: "model
// as a single ToolDescriptor record plus a handler function; remove
// inheritance").
type ToolHandler func(ctx *ToolContext, args json.RawMessage) (*ToolResult, error)

// ToolDescriptor fully describes one registered tool.
type ToolDescriptor struct {
	Name           string
	Description    string
	Readonly       bool
	Parallelizable bool
	ArgSchema      json.RawMessage
	Handler        ToolHandler
}

// TodoStatus is the lifecycle state of a TodoItem.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// TodoPriority ranks a TodoItem's importance.
type TodoPriority string

const (
	TodoLow    TodoPriority = "low"
	TodoMedium TodoPriority = "medium"
	TodoHigh   TodoPriority = "high"
)

// TodoItem is one entry of an agent's structured task list (spec §3).
// Invariant: at most one in_progress item per agent; ids unique within
// an agent's list.
type TodoItem struct {
	ID             string       `json:"id"`
	Content        string       `json:"content"`
	Status         TodoStatus   `json:"status"`
	Priority       TodoPriority `json:"priority"`
	CreatedAt      int64        `json:"created_at"`
	UpdatedAt      int64        `json:"updated_at"`
	PreviousStatus TodoStatus   `json:"previous_status,omitempty"`
}
