package subagent

import (
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/aidev/agentcore/internal/agent"
	"github.com/aidev/agentcore/internal/checkpoint"
	"github.com/aidev/agentcore/internal/compact"
	"github.com/aidev/agentcore/internal/permission"
	"github.com/aidev/agentcore/internal/stream"
	"github.com/aidev/agentcore/internal/tool"
	"github.com/aidev/agentcore/pkg/types"
)

// Config wires an Executor's dependencies. Model, Registry, and
// Permission are shared with the parent Agent Runner; each subtask
// gets its own ephemeral Checkpointer so a child thread never
// persists past its one call.
type Config struct {
	Model      types.ChatModel
	Registry   *tool.Registry
	Permission *permission.Engine
	Descriptors *Registry
	Compactor  *compact.Compactor

	// Writer is the parent run's Stream Writer; child events are
	// relayed into it tagged with the Task call's id (spec §4.6, §4.9).
	Writer *stream.Writer

	RecursionLimit   int
	MaxContextTokens int

	Log *zerolog.Logger
}

// Executor implements tool.TaskExecutor by constructing and driving a
// filtered child Agent Runner per sub-agent invocation (spec §4.9, C9).
// Grounded on internal/executor/subagent.go's ExecuteSubtask flow,
// adding the tool-allowlist filtering and Task self-exclusion the
// teacher never implements (it dispatches by provider/session instead
// of by descriptor tool allowlist).
type Executor struct {
	cfg Config
}

// New constructs an Executor over cfg.
func New(cfg Config) *Executor {
	return &Executor{cfg: cfg}
}

// ExecuteSubtask implements tool.TaskExecutor (spec §4.9):
//  1. resolve agentName against the descriptor registry;
//  2. build a tool registry filtered to the descriptor's allowlist,
//     always excluding Task itself so a sub-agent cannot recurse;
//  3. run prompt through a fresh child Agent Runner to completion;
//  4. relay every child stream event into the parent Writer tagged by
//     the call's TaskID, and emit exactly one LastAIMessage on finish;
//  5. a suspended child (an ASK with no user to answer it) becomes a
//     *types.GraphInterrupt, the sole error type the Tool Dispatcher
//     lets propagate uncaught (spec §7).
func (e *Executor) ExecuteSubtask(ctx *types.ToolContext, agentName, prompt string) (string, error) {
	descriptor, ok := e.cfg.Descriptors.Get(agentName)
	if !ok {
		return "", fmt.Errorf("subagent: unknown agent %q", agentName)
	}

	filtered := e.cfg.Registry.Filtered(descriptor.Tools, tool.TaskToolName)

	childWriter := stream.New(e.cfg.Log)
	childDispatcher := tool.New(filtered, childWriter)

	taskID := ctx.TaskID
	if taskID == "" {
		taskID = ulid.Make().String()
	}

	var relayWG sync.WaitGroup
	if e.cfg.Writer != nil {
		ch := childWriter.Subscribe(64)
		relayWG.Add(1)
		go func() {
			defer relayWG.Done()
			for event := range ch {
				e.cfg.Writer.Relay(taskID, event)
			}
		}()
	}

	childRunner := agent.New(agent.Config{
		Model:            e.cfg.Model,
		Registry:         filtered,
		Dispatcher:       childDispatcher,
		Permission:       e.cfg.Permission,
		Checkpoint:       checkpoint.New(checkpoint.NewMemoryStore()),
		Writer:           childWriter,
		Compactor:        e.cfg.Compactor,
		SystemPrompt:     descriptor.SystemPrompt,
		RecursionLimit:   e.cfg.RecursionLimit,
		MaxContextTokens: e.cfg.MaxContextTokens,
		Log:              e.cfg.Log,
	})

	childThreadID := "task-" + taskID
	outcome, err := childRunner.Submit(ctx.Context, childThreadID, prompt)

	childWriter.Close()
	relayWG.Wait()

	if err != nil {
		return "", fmt.Errorf("subagent: run %s: %w", agentName, err)
	}

	if outcome.Status == agent.StatusSuspended {
		return "", &types.GraphInterrupt{Interrupt: *outcome.Interrupt}
	}

	result := outcome.FinalText
	if outcome.State.UserCanceled {
		result = "user canceled"
	}

	if e.cfg.Writer != nil {
		e.cfg.Writer.Relay(taskID, stream.LastAIMessage(result))
	}

	return result, nil
}
