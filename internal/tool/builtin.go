package tool

import (
	"github.com/aidev/agentcore/internal/eventbus"
	"github.com/aidev/agentcore/internal/freshness"
)

// RegisterBuiltins populates registry with every concrete built-in tool
// except Task, which requires a TaskExecutor supplied by the caller
// (internal/subagent) and is registered separately via NewTaskDescriptor.
func RegisterBuiltins(registry *Registry, tracker *freshness.Tracker, todos *TodoStore, bus *eventbus.Bus) {
	registry.Register(NewReadDescriptor(tracker))
	registry.Register(NewWriteDescriptor(tracker))
	registry.Register(NewEditDescriptor(tracker))
	registry.Register(NewGrepDescriptor())
	registry.Register(NewGlobDescriptor())
	registry.Register(NewListDescriptor())
	registry.Register(NewBashDescriptor())
	registry.Register(NewWebFetchDescriptor())
	registry.Register(NewTodoReadDescriptor(todos))
	registry.Register(NewTodoWriteDescriptor(todos, bus))
	registry.Register(NewBatchDescriptor(registry))
}
