package tool

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aidev/agentcore/internal/eventbus"
	"github.com/aidev/agentcore/pkg/types"
)

// TodoStore holds one structured todo list per agent (spec §3 TodoItem,
// invariant: at most one in_progress item per agent). It is process-wide
// state, constructed once and injected into both todo tools the same way
// the Freshness Tracker and Permission Engine are.
type TodoStore struct {
	mu    sync.Mutex
	lists map[string][]types.TodoItem
}

// NewTodoStore returns an empty store.
func NewTodoStore() *TodoStore {
	return &TodoStore{lists: make(map[string][]types.TodoItem)}
}

// Get returns a copy of agentID's list.
func (s *TodoStore) Get(agentID string) []types.TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.lists[agentID]
	out := make([]types.TodoItem, len(items))
	copy(out, items)
	return out
}

// Set validates and replaces agentID's list.
func (s *TodoStore) Set(agentID string, items []types.TodoItem) error {
	inProgress := 0
	for _, item := range items {
		if item.Status == types.TodoInProgress {
			inProgress++
		}
	}
	if inProgress > 1 {
		return fmt.Errorf("todo: at most one item may be in_progress, got %d", inProgress)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[agentID] = items
	return nil
}

const todoReadDescription = `Reads the current structured todo list for this agent.`

const todoReadArgSchema = `{"type": "object", "properties": {}}`

// NewTodoReadDescriptor builds the TodoRead tool.
func NewTodoReadDescriptor(store *TodoStore) types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "TodoRead",
		Description:    todoReadDescription,
		Readonly:       true,
		Parallelizable: true,
		ArgSchema:      json.RawMessage(todoReadArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			items := store.Get(ctx.AgentID)
			output, _ := json.MarshalIndent(items, "", "  ")
			return &types.ToolResult{Content: string(output), Artifact: items}, nil
		},
	}
}

const todoWriteDescription = `Creates and updates the structured todo list for this agent.

Usage:
- Pass the full updated list; it replaces the previous one
- Exactly one item may have status "in_progress" at a time
- Mark items "completed" immediately after finishing them`

const todoWriteArgSchema = `{
	"type": "object",
	"properties": {
		"todos": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"content": {"type": "string"},
					"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]},
					"priority": {"type": "string", "enum": ["low", "medium", "high"]}
				},
				"required": ["id", "content", "status", "priority"]
			}
		}
	},
	"required": ["todos"]
}`

type todoWriteArgs struct {
	Todos []types.TodoItem `json:"todos"`
}

// NewTodoWriteDescriptor builds the TodoWrite tool. Every successful
// update publishes eventbus.TodoUpdated so anything subscribed (a UI
// panel, a progress log) learns of the change without polling.
func NewTodoWriteDescriptor(store *TodoStore, bus *eventbus.Bus) types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "TodoWrite",
		Description:    todoWriteDescription,
		Readonly:       false,
		Parallelizable: false,
		ArgSchema:      json.RawMessage(todoWriteArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args todoWriteArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("todowrite: invalid args: %w", err)
			}

			now := time.Now().Unix()
			for i := range args.Todos {
				if args.Todos[i].CreatedAt == 0 {
					args.Todos[i].CreatedAt = now
				}
				args.Todos[i].UpdatedAt = now
			}

			if err := store.Set(ctx.AgentID, args.Todos); err != nil {
				return nil, err
			}

			if bus != nil {
				bus.Publish(eventbus.Event{
					Type: eventbus.TodoUpdated,
					Data: map[string]any{"agent_id": ctx.AgentID, "todos": args.Todos},
				})
			}

			pending := 0
			for _, t := range args.Todos {
				if t.Status != types.TodoCompleted {
					pending++
				}
			}

			output, _ := json.MarshalIndent(args.Todos, "", "  ")
			return &types.ToolResult{
				Content:  fmt.Sprintf("%d todo(s) pending\n%s", pending, output),
				Artifact: args.Todos,
			}, nil
		},
	}
}
