package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aidev/agentcore/internal/stream"
	"github.com/aidev/agentcore/pkg/types"
)

// TaskToolName is the reserved name of the sub-agent fan-out tool
// (spec §4.5, §4.9). The Dispatcher routes calls with this name
// through the dedicated task-slot lane instead of the ordinary
// parallel/serial lanes.
const TaskToolName = "Task"

// MaxTaskSlots bounds per-turn sub-agent fan-out (spec §4.5: "up to N
// (e.g. 20) task-slot nodes").
const MaxTaskSlots = 20

// Dispatcher partitions an assistant turn's ALLOW-approved tool calls
// into the parallel lane, the serial lane, and the Task-tool slot lane,
// and executes them per spec §4.5.
type Dispatcher struct {
	registry *Registry
	writer   *stream.Writer
}

// New constructs a Dispatcher over registry, emitting tool_start/
// tool_delta/tool_end events to writer (a nil writer is allowed; the
// Dispatcher then emits nothing).
func New(registry *Registry, writer *stream.Writer) *Dispatcher {
	return &Dispatcher{registry: registry, writer: writer}
}

// TaskSlotResult records the outcome of one Task-tool fan-out slot for
// the caller (the Agent Runner) to persist into AgentState.TaskSlots
// (spec §3, §4.9.5).
type TaskSlotResult struct {
	SlotIndex int
	CallID    string
	Message   types.ToolMessage
}

// Dispatch executes calls per spec §4.5:
//   - parallelizable descriptors run concurrently via errgroup;
//   - non-parallelizable descriptors run serially in emission order;
//   - calls named TaskToolName run in their own slot-indexed lane,
//     bounded by MaxTaskSlots, with slot index = position among Task
//     calls within this turn (spec §4.9.5).
//
// isCanceled is polled at node entry, before starting tool handlers,
// and between serial executions (spec §5); once it reports true, every
// not-yet-completed call is answered with a synthesized "user
// canceled" ToolMessage instead of being invoked.
//
// A types.GraphInterrupt from a handler propagates to the caller
// uncaught (spec §7); every other handler error is converted to a
// ToolMessage describing the failure.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []types.ToolCall, isCanceled func() bool, base types.ToolContext) ([]types.ToolMessage, []TaskSlotResult, error) {
	var normal, tasks []types.ToolCall
	for _, c := range calls {
		if c.Name == TaskToolName {
			tasks = append(tasks, c)
		} else {
			normal = append(normal, c)
		}
	}

	var (
		messages   []types.ToolMessage
		taskResult []TaskSlotResult
		mu         sync.Mutex
		outerGroup errgroup.Group
	)

	if len(normal) > 0 {
		outerGroup.Go(func() error {
			msgs, err := d.dispatchNormal(ctx, normal, isCanceled, base)
			mu.Lock()
			messages = append(messages, msgs...)
			mu.Unlock()
			return err
		})
	}
	if len(tasks) > 0 {
		outerGroup.Go(func() error {
			results, err := d.dispatchTasks(ctx, tasks, isCanceled, base)
			mu.Lock()
			taskResult = append(taskResult, results...)
			for _, r := range results {
				messages = append(messages, r.Message)
			}
			mu.Unlock()
			return err
		})
	}

	if err := outerGroup.Wait(); err != nil {
		return messages, taskResult, err
	}
	return messages, taskResult, nil
}

func (d *Dispatcher) dispatchNormal(ctx context.Context, calls []types.ToolCall, isCanceled func() bool, base types.ToolContext) ([]types.ToolMessage, error) {
	var parallel, serial []types.ToolCall
	for _, c := range calls {
		desc, ok := d.registry.Get(c.Name)
		if ok && desc.Parallelizable {
			parallel = append(parallel, c)
		} else {
			serial = append(serial, c)
		}
	}

	messages := make([]types.ToolMessage, 0, len(calls))

	if isCanceled() {
		return d.canceledMessages(calls), nil
	}

	if len(parallel) > 0 {
		results := make([]types.ToolMessage, len(parallel))
		g, gctx := errgroup.WithContext(ctx)
		var interrupted error
		var interruptOnce sync.Once

		for i, c := range parallel {
			i, c := i, c
			g.Go(func() error {
				if isCanceled() {
					results[i] = canceledMessage(c.ID)
					return nil
				}
				msg, err := d.invoke(gctx, c, base)
				if gi, ok := err.(*types.GraphInterrupt); ok {
					interruptOnce.Do(func() { interrupted = gi })
					return gi
				}
				results[i] = msg
				return nil
			})
		}
		if err := g.Wait(); err != nil && interrupted != nil {
			// Retain every sibling result already written before the
			// interrupt fired (spec §4.5: "already-completed tasks'
			// results are retained"); a zero-value entry means that
			// goroutine never got past its own isCanceled/interrupt
			// check, so it is simply omitted rather than reported as a
			// message with an empty CallID.
			for _, m := range results {
				if m.CallID != "" {
					messages = append(messages, m)
				}
			}
			return messages, interrupted
		}
		messages = append(messages, results...)
	}

	for _, c := range serial {
		if isCanceled() {
			messages = append(messages, canceledMessage(c.ID))
			continue
		}
		msg, err := d.invoke(ctx, c, base)
		if gi, ok := err.(*types.GraphInterrupt); ok {
			return messages, gi
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// dispatchTasks runs Task-tool calls in the dedicated slot lane (spec
// §4.5, §4.9.5): slot index is the position of the call among this
// turn's Task calls, bounded by MaxTaskSlots, and every slot runs
// concurrently.
func (d *Dispatcher) dispatchTasks(ctx context.Context, calls []types.ToolCall, isCanceled func() bool, base types.ToolContext) ([]TaskSlotResult, error) {
	if len(calls) > MaxTaskSlots {
		calls = calls[:MaxTaskSlots]
	}

	results := make([]TaskSlotResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)

	for slot, c := range calls {
		slot, c := slot, c
		g.Go(func() error {
			if isCanceled() {
				results[slot] = TaskSlotResult{SlotIndex: slot, CallID: c.ID, Message: canceledMessage(c.ID)}
				return nil
			}
			callBase := base
			callBase.TaskID = c.ID
			callBase.NodeIndex = slot
			msg, err := d.invoke(gctx, c, callBase)
			if gi, ok := err.(*types.GraphInterrupt); ok {
				return gi
			}
			results[slot] = TaskSlotResult{SlotIndex: slot, CallID: c.ID, Message: msg}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Retain every sibling slot already completed before the
		// interrupt fired (spec §4.5, §4.9.5, §8 invariant 5: resuming
		// must not lose or re-run an already-finished sub-agent slot).
		completed := make([]TaskSlotResult, 0, len(results))
		for _, r := range results {
			if r.CallID != "" {
				completed = append(completed, r)
			}
		}
		return completed, err
	}
	return results, nil
}

// invoke calls the handler for c, converting any non-GraphInterrupt
// error into a ToolMessage so the LLM can observe and react (spec §7).
func (d *Dispatcher) invoke(ctx context.Context, c types.ToolCall, base types.ToolContext) (types.ToolMessage, error) {
	desc, ok := d.registry.Get(c.Name)
	if !ok {
		d.emit(stream.ToolStart(c.ID, c.Name, string(c.Args), ""))
		d.emit(stream.ToolEnd(c.ID, stream.ToolError, "", errUnknownTool(c.Name).Error()))
		return types.ToolMessage{CallID: c.ID, Content: errUnknownTool(c.Name).Error()}, nil
	}

	toolCtx := base
	toolCtx.Context = ctx
	toolCtx.ToolID = c.ID
	toolCtx.OnDelta = func(message string) { d.emit(stream.ToolDelta(c.ID, message)) }

	d.emit(stream.ToolStart(c.ID, c.Name, string(c.Args), ""))

	result, err := d.safeInvoke(desc, &toolCtx, c.Args)
	if err != nil {
		if gi, ok := err.(*types.GraphInterrupt); ok {
			return types.ToolMessage{}, gi
		}
		d.emit(stream.ToolEnd(c.ID, stream.ToolError, "", err.Error()))
		return types.ToolMessage{CallID: c.ID, Content: (&types.ToolError{Tool: c.Name, Err: err}).Error()}, nil
	}

	d.emit(stream.ToolEnd(c.ID, stream.ToolSuccess, result.Content, ""))
	return types.ToolMessage{CallID: c.ID, Content: result.Content, Artifact: result.Artifact}, nil
}

// safeInvoke recovers a handler panic into an error so one misbehaving
// tool cannot take down the dispatcher (spec §7 policy: "all handler-
// level exceptions are caught at the dispatcher boundary").
func (d *Dispatcher) safeInvoke(desc types.ToolDescriptor, toolCtx *types.ToolContext, args json.RawMessage) (result *types.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", desc.Name, r)
		}
	}()
	return desc.Handler(toolCtx, args)
}

func (d *Dispatcher) emit(e stream.Event) {
	if d.writer != nil {
		d.writer.Emit(e)
	}
}

func (d *Dispatcher) canceledMessages(calls []types.ToolCall) []types.ToolMessage {
	out := make([]types.ToolMessage, 0, len(calls))
	for _, c := range calls {
		out = append(out, canceledMessage(c.ID))
	}
	return out
}

func canceledMessage(callID string) types.ToolMessage {
	return types.ToolMessage{CallID: callID, Content: "user canceled"}
}
