package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/aidev/agentcore/pkg/types"
)

// Classification is the Checkpointer's read of a thread's persisted
// state relative to an incoming request (spec §4.7).
type Classification string

const (
	// Resume: state has pending Interrupts. The incoming value is the
	// user's choice to be delivered to the suspended interrupt.
	Resume Classification = "resume"
	// Busy: state has runnable nodes (Node != "" and != "Finished").
	// The input is appended to the Input Queue instead of starting a
	// new run.
	Busy Classification = "busy"
	// Fresh: no prior state, or the prior run finished. Seed AgentState
	// with a new User message.
	Fresh Classification = "fresh"
)

// Checkpointer persists and restores AgentState per thread_id (spec
// §4.7, C7). It is a thin codec + classification layer over a Store.
type Checkpointer struct {
	store Store
}

// New constructs a Checkpointer over store.
func New(store Store) *Checkpointer {
	return &Checkpointer{store: store}
}

// Classify loads the state for threadID, if any, and reports how the
// caller should treat a new request arriving for that thread.
func (c *Checkpointer) Classify(threadID string) (Classification, *types.AgentState, error) {
	state, err := c.Load(threadID)
	if err != nil {
		if err == ErrNotFound {
			return Fresh, nil, nil
		}
		return "", nil, err
	}

	if len(state.Interrupts) > 0 {
		return Resume, state, nil
	}
	if state.Node != "" && state.Node != "Finished" {
		return Busy, state, nil
	}
	return Fresh, state, nil
}

// Load restores the AgentState for threadID.
func (c *Checkpointer) Load(threadID string) (*types.AgentState, error) {
	blob, err := c.store.Get(threadID)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		// Delete leaves an empty blob behind: no state.
		return nil, ErrNotFound
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal envelope: %w", err)
	}

	var state types.AgentState
	if err := json.Unmarshal(env.State, &state); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal state: %w", err)
	}

	messages, err := types.UnmarshalMessages(env.Messages)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal messages: %w", err)
	}
	state.Messages = messages

	return &state, nil
}

// Save persists state at each node boundary (spec §4.8: "the Agent
// Runner persists its AgentState at each node boundary").
func (c *Checkpointer) Save(state *types.AgentState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal state: %w", err)
	}
	messagesJSON, err := types.MarshalMessages(state.Messages)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal messages: %w", err)
	}

	blob, err := json.Marshal(envelope{State: stateJSON, Messages: messagesJSON})
	if err != nil {
		return fmt.Errorf("checkpoint: marshal envelope: %w", err)
	}
	return c.store.Put(state.ThreadID, blob)
}

// Delete clears the persisted state for threadID (later loads report
// ErrNotFound), e.g. on session reset.
func (c *Checkpointer) Delete(threadID string) error {
	return c.store.Put(threadID, nil)
}
