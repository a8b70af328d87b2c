// Package agent implements the Agent Runner (C8): the
// Reason -> CheckPermissions -> ExecuteTools -> Reason state machine
// that drives one thread's conversation with the LLM, with
// checkpointing, interruption, and resumption (spec §4.8). Grounded on
// the teacher's internal/session/loop.go (the retry/backoff and
// finish-reason switch) and internal/session/processor.go, combined
// with the Python original's re_act_agent.py node split, rebuilt
// around the Checkpointer's explicit Resume/Busy/Fresh classification
// and a Suspended status instead of a blocking interrupt() call (spec
// §9).
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/aidev/agentcore/internal/checkpoint"
	"github.com/aidev/agentcore/internal/compact"
	"github.com/aidev/agentcore/internal/eventbus"
	"github.com/aidev/agentcore/internal/inputqueue"
	"github.com/aidev/agentcore/internal/logging"
	"github.com/aidev/agentcore/internal/permission"
	"github.com/aidev/agentcore/internal/stream"
	"github.com/aidev/agentcore/internal/tool"
	"github.com/aidev/agentcore/pkg/types"
)

// Node names, matching spec §4.8's state labels exactly so
// checkpointed state round-trips legibly.
const (
	NodeReason           = "Reason"
	NodeCheckPermissions = "CheckPermissions"
	NodeExecuteTools     = "ExecuteTools"
	NodeFinished         = "Finished"
)

// DefaultRecursionLimit bounds AgentState.Iteration (spec §4.8: "a
// configurable limit; if iteration exceeds the limit, transition to
// Finished with an error message"), grounded on the teacher's MaxSteps.
const DefaultRecursionLimit = 50

// Retry tuning for transient LLM-call failures, grounded on the
// teacher's internal/session/loop.go newRetryBackoff.
const (
	retryInitialInterval = time.Second
	retryMaxInterval      = 30 * time.Second
	retryMaxElapsedTime   = 2 * time.Minute
	retryMaxRetries       = 3
)

// Status is the terminal disposition of one Submit/Resume call.
type Status string

const (
	// StatusFinished means the run reached NodeFinished: no further
	// Reason invocation will happen for this thread until a new
	// Submit starts a fresh run.
	StatusFinished Status = "finished"
	// StatusSuspended means an ASK permission request is pending; the
	// caller must deliver the user's choice via Resume.
	StatusSuspended Status = "suspended"
	// StatusQueued means the thread was busy; input was appended to
	// the Input Queue instead of starting a new run (spec §4.7 Busy).
	StatusQueued Status = "queued"
)

// Outcome is returned by every Submit/Resume call.
type Outcome struct {
	Status Status
	State  *types.AgentState
	// FinalText is the last assistant message's text, valid only when
	// Status is StatusFinished (used by the Task tool to relay a
	// sub-agent's result, spec §4.9).
	FinalText string
	// Interrupt is the pending suspension, valid only when Status is
	// StatusSuspended.
	Interrupt *types.Interrupt
}

// Config wires a Runner's dependencies. All fields except SystemPrompt
// and the required collaborators have sane defaults.
type Config struct {
	Model      types.ChatModel
	Registry   *tool.Registry
	Dispatcher *tool.Dispatcher
	Permission *permission.Engine
	Checkpoint *checkpoint.Checkpointer
	Bus        *eventbus.Bus
	Writer     *stream.Writer
	Compactor  *compact.Compactor

	// InputQueue is consulted at the start of every Reason turn (spec
	// §4.8 step 1). Leave nil for sub-agent runners, which do not
	// queue input (spec §4.2: "main agent only").
	InputQueue *inputqueue.Queue

	SystemPrompt     string
	RecursionLimit   int
	MaxContextTokens int

	// Log is nil by default, which falls back to a no-op logger.
	Log *zerolog.Logger
}

// Runner drives one AgentState through the state machine in spec
// §4.8. A Runner instance is reused across every Submit/Resume call
// for the process; AgentState itself is the owned, per-thread state
// (spec §3 ownership rules).
type Runner struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	canceled map[string]bool
}

// New constructs a Runner over cfg and, if cfg.Bus is set, subscribes
// to USER_CANCEL so isCanceled reflects out-of-band cancellation (spec
// §4.8: "a USER_CANCEL event toggles an internal flag checked at each
// node entry").
func New(cfg Config) *Runner {
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = DefaultRecursionLimit
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = 150000
	}
	log := logging.Nop()
	if cfg.Log != nil {
		log = *cfg.Log
	}
	r := &Runner{cfg: cfg, log: log, canceled: make(map[string]bool)}
	if cfg.Bus != nil {
		cfg.Bus.Subscribe(eventbus.UserCancel, "agent-runner", true, r.onUserCancel)
	}
	return r
}

func (r *Runner) onUserCancel(e eventbus.Event) {
	threadID, _ := e.Data.(string)
	if threadID == "" {
		return
	}
	r.mu.Lock()
	r.canceled[threadID] = true
	r.mu.Unlock()
}

// Cancel marks threadID canceled directly, for callers that don't go
// through the Event Bus (e.g. tests, or a synchronous CLI Ctrl-C
// handler).
func (r *Runner) Cancel(threadID string) {
	r.mu.Lock()
	r.canceled[threadID] = true
	r.mu.Unlock()
}

func (r *Runner) isCanceled(state *types.AgentState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return state.UserCanceled || r.canceled[state.ThreadID]
}

// Submit classifies threadID's checkpointed state (spec §4.7) and acts
// accordingly: Fresh seeds a new run from text; Busy enqueues text;
// Resume treats text as the user's choice ("1"/"2"/"3" or the
// permission.Choice constants) for the pending interrupt.
func (r *Runner) Submit(ctx context.Context, threadID, text string) (*Outcome, error) {
	class, state, err := r.cfg.Checkpoint.Classify(threadID)
	if err != nil {
		return nil, fmt.Errorf("agent: classify thread %s: %w", threadID, err)
	}

	switch class {
	case checkpoint.Fresh:
		state = &types.AgentState{
			ThreadID: threadID,
			AgentID:  threadID,
			Messages: []types.Message{&types.UserMessage{Text: text}},
			Node:     NodeReason,
		}
		return r.loop(ctx, state)

	case checkpoint.Busy:
		if r.cfg.InputQueue != nil {
			r.cfg.InputQueue.Put(text)
		}
		r.emit(stream.UserInputQueued(text))
		return &Outcome{Status: StatusQueued, State: state}, nil

	case checkpoint.Resume:
		if err := r.resolveInterrupt(state, text); err != nil {
			return nil, err
		}
		return r.loop(ctx, state)

	default:
		return nil, fmt.Errorf("agent: unknown classification %q", class)
	}
}

// resolveInterrupt applies the user's raw choice string to the
// thread's single pending Interrupt (spec §4.4 apply_user_choice,
// §4.8: "between interrupts the state is checkpointed; the caller
// resolves each with a choice").
func (r *Runner) resolveInterrupt(state *types.AgentState, raw string) error {
	if len(state.Interrupts) == 0 {
		return fmt.Errorf("agent: thread %s has no pending interrupt", state.ThreadID)
	}
	pending := state.Interrupts[0]
	state.Interrupts = nil

	choice := parseChoice(raw)
	key, _ := pending.Payload["permission_key"].(string)
	req := permission.Request{ToolName: pending.ToolCall.Name, PermissionKey: key}
	decision := r.cfg.Permission.ApplyUserChoice(state.ThreadID, req, choice)

	if state.Approvals == nil {
		state.Approvals = make(map[string]bool)
	}

	if decision == permission.Allow {
		state.Approvals[pending.ToolCall.ID] = true
		return nil
	}

	state.Approvals[pending.ToolCall.ID] = false
	state.Messages = append(state.Messages, &types.ToolMessage{
		CallID:  pending.ToolCall.ID,
		Content: fmt.Sprintf("permission denied: %s", pending.ToolCall.Name),
	})
	// Spec §4.8 step 4: "if any ASK resolves to DENY, publish
	// USER_CANCEL and transition to Finished (remaining tool calls
	// reported as canceled)".
	state.UserCanceled = true
	if r.cfg.Bus != nil {
		r.cfg.Bus.Publish(eventbus.Event{Type: eventbus.UserCancel, Data: state.ThreadID})
	}
	return nil
}

// parseChoice maps the three user-facing choice strings from spec
// §4.8 ("1 allow-once / 2 allow-session / 3 deny") onto
// permission.Choice, also accepting the Choice constants verbatim.
func parseChoice(raw string) permission.Choice {
	switch raw {
	case "1", string(permission.ChoiceAllowOnce):
		return permission.ChoiceAllowOnce
	case "2", string(permission.ChoiceAllowSession):
		return permission.ChoiceAllowSession
	default:
		return permission.ChoiceDeny
	}
}

// loop drives state through nodes until it reaches a terminal Outcome:
// Finished or Suspended. Busy is never returned here; it is only
// produced by Submit before loop is entered.
func (r *Runner) loop(ctx context.Context, state *types.AgentState) (*Outcome, error) {
	for {
		switch state.Node {
		case "", NodeReason:
			finished, err := r.reason(ctx, state)
			if err != nil {
				return nil, err
			}
			if finished {
				return r.finish(state), nil
			}

		case NodeCheckPermissions:
			if r.isCanceled(state) || state.UserCanceled {
				state.Node = NodeFinished
				if err := r.synthesizeCanceledMessages(state); err != nil {
					return nil, err
				}
				continue
			}
			suspended, err := r.checkPermissions(state)
			if err != nil {
				return nil, err
			}
			if suspended {
				if err := r.cfg.Checkpoint.Save(state); err != nil {
					return nil, err
				}
				interrupt := state.Interrupts[0]
				return &Outcome{Status: StatusSuspended, State: state, Interrupt: &interrupt}, nil
			}
			if r.isCanceled(state) || state.UserCanceled {
				state.Node = NodeFinished
				if err := r.synthesizeCanceledMessages(state); err != nil {
					return nil, err
				}
				continue
			}
			state.Node = NodeExecuteTools

		case NodeExecuteTools:
			if err := r.executeTools(ctx, state); err != nil {
				if gi, ok := err.(*types.GraphInterrupt); ok {
					state.Interrupts = append(state.Interrupts, gi.Interrupt)
					if err := r.cfg.Checkpoint.Save(state); err != nil {
						return nil, err
					}
					return &Outcome{Status: StatusSuspended, State: state, Interrupt: &gi.Interrupt}, nil
				}
				return nil, err
			}
			state.Node = NodeReason

		case NodeFinished:
			return r.finish(state), nil

		default:
			return nil, fmt.Errorf("agent: thread %s: unknown node %q", state.ThreadID, state.Node)
		}
	}
}

func (r *Runner) finish(state *types.AgentState) *Outcome {
	state.Node = NodeFinished
	return &Outcome{Status: StatusFinished, State: state, FinalText: lastAssistantText(state.Messages)}
}

func lastAssistantText(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if a, ok := messages[i].(*types.AssistantMessage); ok {
			return a.Text
		}
	}
	return ""
}

// reason implements the Reason node (spec §4.8): queue drain, cancel
// check, compaction, the LLM call, and tool-call extraction. Returns
// finished=true when the run should transition straight to Finished.
func (r *Runner) reason(ctx context.Context, state *types.AgentState) (finished bool, err error) {
	if r.cfg.InputQueue != nil {
		if pending := r.cfg.InputQueue.PopAll(); len(pending) > 0 {
			for _, text := range pending {
				state.Messages = append(state.Messages, &types.UserMessage{Text: text})
			}
			r.emit(stream.UserInputConsumed(pending))
		}
	}

	if r.isCanceled(state) || state.UserCanceled {
		state.UserCanceled = true
		return true, nil
	}

	if r.cfg.Compactor != nil && r.cfg.Compactor.ShouldCompact(state.Messages) {
		replaced, cerr := r.cfg.Compactor.Compact(ctx, state.Messages)
		if cerr != nil {
			r.log.Warn().Err(cerr).Str("thread_id", state.ThreadID).Msg("agent: compaction failed, continuing uncompacted")
		} else {
			state.Messages = replaced
		}
	}

	state.Iteration++
	if state.Iteration > r.cfg.RecursionLimit {
		r.emit(stream.ErrorEvent((&types.RecursionLimitError{Limit: r.cfg.RecursionLimit}).Error()))
		return true, nil
	}

	request := make([]types.Message, 0, len(state.Messages)+1)
	if r.cfg.SystemPrompt != "" {
		request = append(request, &types.SystemMessage{Text: r.cfg.SystemPrompt})
	}
	request = append(request, state.Messages...)

	var tools []types.ToolDescriptor
	if r.cfg.Registry != nil {
		tools = r.cfg.Registry.List()
	}

	assistant, err := r.invokeWithRetry(ctx, request, tools)
	if err != nil {
		return false, fmt.Errorf("agent: reason: %w", err)
	}

	state.Messages = append(state.Messages, assistant)
	if len(assistant.ToolCalls) == 0 {
		return true, nil
	}

	state.ToolCalls = assistant.ToolCalls
	state.Approvals = nil
	state.Node = NodeCheckPermissions
	return false, r.cfg.Checkpoint.Save(state)
}

// invokeWithRetry streams one assistant turn, emitting message_start/
// message_delta/message_end, retrying transient stream errors with
// jittered exponential backoff (grounded on the teacher's
// newRetryBackoff in internal/session/loop.go).
func (r *Runner) invokeWithRetry(ctx context.Context, request []types.Message, tools []types.ToolDescriptor) (*types.AssistantMessage, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = retryMaxElapsedTime
	b.RandomizationFactor = 0.5
	bo := backoff.WithContext(backoff.WithMaxRetries(b, retryMaxRetries), ctx)

	var result *types.AssistantMessage
	operation := func() error {
		assistant, err := r.streamOnce(ctx, request, tools)
		if err != nil {
			return err
		}
		result = assistant
		return nil
	}

	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runner) streamOnce(ctx context.Context, request []types.Message, tools []types.ToolDescriptor) (*types.AssistantMessage, error) {
	chunks, err := r.cfg.Model.Stream(ctx, request, tools)
	if err != nil {
		return nil, err
	}
	defer chunks.Close()

	messageID := ulid.Make().String()
	r.emit(stream.MessageStart(messageID))

	var text string
	var usage *types.TokenUsage
	builders := map[int]*toolCallBuilder{}
	var order []int

	for {
		chunk, err := chunks.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk.DeltaText != "" {
			text += chunk.DeltaText
			r.emit(stream.MessageDelta(messageID, chunk.DeltaText, len(chunk.DeltaText)/4))
		}
		for _, tc := range chunk.ToolCallChunks {
			b, ok := builders[tc.Index]
			if !ok {
				b = &toolCallBuilder{}
				builders[tc.Index] = b
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Name != "" {
				b.name = tc.Name
			}
			b.args += tc.ArgsDelta
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	r.emit(stream.MessageEnd(messageID))

	var calls []types.ToolCall
	for _, idx := range order {
		b := builders[idx]
		calls = append(calls, types.ToolCall{ID: b.id, Name: b.name, Args: json.RawMessage(b.argsOrEmptyObject())})
	}

	return &types.AssistantMessage{Text: text, ToolCalls: calls, Usage: usage}, nil
}

type toolCallBuilder struct {
	id   string
	name string
	args string
}

func (b *toolCallBuilder) argsOrEmptyObject() string {
	if b.args == "" {
		return "{}"
	}
	return b.args
}

// checkPermissions implements the CheckPermissions node (spec §4.8):
// consult the Permission Engine for every pending ToolCall not yet
// decided this turn, pre-allowing/pre-denying, and raising exactly one
// interrupt for the first undecided ASK.
func (r *Runner) checkPermissions(state *types.AgentState) (suspended bool, err error) {
	if state.Approvals == nil {
		state.Approvals = make(map[string]bool)
	}

	for _, call := range state.ToolCalls {
		if _, decided := state.Approvals[call.ID]; decided {
			continue
		}

		var args map[string]any
		_ = json.Unmarshal(call.Args, &args)
		inv := permission.Invocation{SessionID: state.ThreadID, Tool: call.Name, Args: args, Cwd: state.WorkingDirectory}
		decision, req := r.cfg.Permission.Check(inv)

		switch decision {
		case permission.Allow:
			state.Approvals[call.ID] = true

		case permission.Deny:
			state.Approvals[call.ID] = false
			state.Messages = append(state.Messages, &types.ToolMessage{
				CallID:  call.ID,
				Content: fmt.Sprintf("permission denied: %s", call.Name),
			})

		case permission.Ask:
			interrupt := types.Interrupt{
				ID:   ulid.Make().String(),
				Kind: "permission_request",
				Payload: map[string]any{
					"tool_name":      req.ToolName,
					"args":           req.Args,
					"cwd":            req.Cwd,
					"permission_key": req.PermissionKey,
				},
				ToolCall: call,
			}
			state.Interrupts = []types.Interrupt{interrupt}
			r.emit(stream.InterruptEvent(interrupt.ID, interrupt.Kind, interrupt.Payload))
			return true, nil
		}
	}

	return false, nil
}

// synthesizeCanceledMessages answers every pending ToolCall not yet
// answered with a "user canceled" ToolMessage, preserving the log
// invariant (spec §3, §7) when a run ends via cancellation instead of
// normal tool dispatch.
func (r *Runner) synthesizeCanceledMessages(state *types.AgentState) error {
	answered := make(map[string]bool)
	for _, m := range state.Messages {
		if tm, ok := m.(*types.ToolMessage); ok {
			answered[tm.CallID] = true
		}
	}
	for _, call := range state.ToolCalls {
		if answered[call.ID] {
			continue
		}
		state.Messages = append(state.Messages, &types.ToolMessage{CallID: call.ID, Content: "user canceled"})
	}
	state.ToolCalls = nil
	state.Approvals = nil
	return r.cfg.Checkpoint.Save(state)
}

// executeTools implements the ExecuteTools node: dispatch every
// ALLOW-approved ToolCall (including Task calls, routed by the
// Dispatcher's own slot lane per spec §4.5) and append the results.
func (r *Runner) executeTools(ctx context.Context, state *types.AgentState) error {
	var approved []types.ToolCall
	for _, call := range state.ToolCalls {
		if ok := state.Approvals[call.ID]; ok {
			approved = append(approved, call)
		}
	}

	base := types.ToolContext{
		Context:          ctx,
		AgentID:          state.AgentID,
		WorkingDirectory: state.WorkingDirectory,
	}

	messages, slots, err := r.cfg.Dispatcher.Dispatch(ctx, approved, func() bool { return r.isCanceled(state) }, base)

	// Dispatch may return a GraphInterrupt alongside already-completed
	// sibling results (spec §4.5: "already-completed tasks' results are
	// retained"); persist those before propagating the interrupt so a
	// resume does not lose or re-run a finished tool/sub-agent call.
	if state.TaskSlots == nil && len(slots) > 0 {
		state.TaskSlots = make(map[int]types.TaskSlotState, len(slots))
	}
	for _, s := range slots {
		state.TaskSlots[s.SlotIndex] = types.TaskSlotState{CallID: s.CallID, Done: true, Result: s.Message.Content}
	}
	for i := range messages {
		state.Messages = append(state.Messages, &messages[i])
	}

	if err != nil {
		return err
	}

	if r.isCanceled(state) {
		state.UserCanceled = true
	}

	state.ToolCalls = nil
	state.Approvals = nil
	return r.cfg.Checkpoint.Save(state)
}

func (r *Runner) emit(e stream.Event) {
	if r.cfg.Writer != nil {
		r.cfg.Writer.Emit(e)
	}
}
