package agent

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidev/agentcore/internal/checkpoint"
	"github.com/aidev/agentcore/internal/permission"
	"github.com/aidev/agentcore/internal/stream"
	"github.com/aidev/agentcore/internal/tool"
	"github.com/aidev/agentcore/pkg/types"
)

type fakeChunkStream struct {
	chunks []*types.AssistantChunk
	idx    int
}

func (f *fakeChunkStream) Recv() (*types.AssistantChunk, error) {
	if f.idx >= len(f.chunks) {
		return nil, io.EOF
	}
	c := f.chunks[f.idx]
	f.idx++
	return c, nil
}

func (f *fakeChunkStream) Close() error { return nil }

// scriptedModel replays one []*types.AssistantChunk turn per Stream
// call, in order; calling Stream past the end of the script panics so
// a test's own expectations surface as a clear failure.
type scriptedModel struct {
	turns [][]*types.AssistantChunk
	idx   int
}

func (m *scriptedModel) Stream(ctx context.Context, messages []types.Message, tools []types.ToolDescriptor) (types.ChunkStream, error) {
	if m.idx >= len(m.turns) {
		panic("scriptedModel: Stream called more times than scripted")
	}
	turn := m.turns[m.idx]
	m.idx++
	return &fakeChunkStream{chunks: turn}, nil
}

func (m *scriptedModel) Invoke(ctx context.Context, messages []types.Message) (*types.AssistantMessage, error) {
	panic("scriptedModel: Invoke not used by the runner")
}

func textTurn(text string) []*types.AssistantChunk {
	return []*types.AssistantChunk{{DeltaText: text}}
}

func toolCallTurn(id, name, args string) []*types.AssistantChunk {
	return []*types.AssistantChunk{{ToolCallChunks: []types.ToolCallChunk{{Index: 0, ID: id, Name: name, ArgsDelta: args}}}}
}

func newTestRunner(t *testing.T, model *scriptedModel, rules permission.RuleSet, registry *tool.Registry) (*Runner, *checkpoint.Checkpointer) {
	t.Helper()
	store := checkpoint.NewMemoryStore()
	cp := checkpoint.New(store)
	if registry == nil {
		registry = tool.NewRegistry()
	}
	w := stream.New(nil)
	disp := tool.New(registry, w)
	engine := permission.NewEngine(rules, permission.NewSessionCache())

	runner := New(Config{
		Model:            model,
		Registry:         registry,
		Dispatcher:       disp,
		Permission:       engine,
		Checkpoint:       cp,
		Writer:           w,
		MaxContextTokens: 100000,
	})
	return runner, cp
}

func TestSimpleQuestionAnswer(t *testing.T) {
	model := &scriptedModel{turns: [][]*types.AssistantChunk{textTurn("the answer is 4")}}
	runner, _ := newTestRunner(t, model, permission.RuleSet{}, nil)

	out, err := runner.Submit(context.Background(), "thread-1", "what is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, out.Status)
	assert.Equal(t, "the answer is 4", out.FinalText)
	assert.Equal(t, NodeFinished, out.State.Node)
}

func echoDescriptor() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "Echo",
		Parallelizable: true,
		Handler: func(ctx *types.ToolContext, args json.RawMessage) (*types.ToolResult, error) {
			var a struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(args, &a)
			return &types.ToolResult{Content: "echoed: " + a.Text}, nil
		},
	}
}

func TestToolCallAllowedByRuleCompletesInSecondTurn(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(echoDescriptor())

	model := &scriptedModel{turns: [][]*types.AssistantChunk{
		toolCallTurn("call-1", "Echo", `{"text":"hi"}`),
		textTurn("done"),
	}}
	rules := permission.NewRuleSet([]string{"Echo"}, nil, nil)
	runner, _ := newTestRunner(t, model, rules, registry)

	out, err := runner.Submit(context.Background(), "thread-2", "say hi")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, out.Status)
	assert.Equal(t, "done", out.FinalText)

	var sawToolMessage bool
	for _, m := range out.State.Messages {
		if tm, ok := m.(*types.ToolMessage); ok {
			assert.Equal(t, "echoed: hi", tm.Content)
			sawToolMessage = true
		}
	}
	assert.True(t, sawToolMessage, "expected a ToolMessage answering the Echo call")
}

func TestPermissionAskSuspendsThenResumesOnAllowOnce(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(echoDescriptor())

	model := &scriptedModel{turns: [][]*types.AssistantChunk{
		toolCallTurn("call-1", "Echo", `{"text":"hi"}`),
		textTurn("done"),
	}}
	// No allow/deny rule for Echo: the engine's default is ASK.
	runner, cp := newTestRunner(t, model, permission.RuleSet{}, registry)

	out, err := runner.Submit(context.Background(), "thread-3", "say hi")
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, out.Status)
	require.NotNil(t, out.Interrupt)
	assert.Equal(t, "permission_request", out.Interrupt.Kind)

	class, _, err := cp.Classify("thread-3")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Resume, class)

	out, err = runner.Submit(context.Background(), "thread-3", "1")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, out.Status)
	assert.Equal(t, "done", out.FinalText)
}

func TestPermissionDenyChoiceCancelsRun(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(echoDescriptor())

	model := &scriptedModel{turns: [][]*types.AssistantChunk{
		toolCallTurn("call-1", "Echo", `{"text":"hi"}`),
	}}
	runner, _ := newTestRunner(t, model, permission.RuleSet{}, registry)

	out, err := runner.Submit(context.Background(), "thread-4", "say hi")
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, out.Status)

	out, err = runner.Submit(context.Background(), "thread-4", "3")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, out.Status)
	assert.True(t, out.State.UserCanceled)

	var denied bool
	for _, m := range out.State.Messages {
		if tm, ok := m.(*types.ToolMessage); ok && tm.CallID == "call-1" {
			denied = true
		}
	}
	assert.True(t, denied, "expected the denied call to be answered with a ToolMessage")
}

func TestPermissionDenyOfFirstAskCancelsRunWithoutRaisingSecondInterrupt(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(echoDescriptor())

	// Two calls, neither covered by a rule, so both would ASK if
	// evaluated: denying the first must short-circuit straight to
	// Finished (spec §4.8 step 4) instead of raising a second
	// interrupt for call-2.
	model := &scriptedModel{turns: [][]*types.AssistantChunk{{
		{ToolCallChunks: []types.ToolCallChunk{
			{Index: 0, ID: "call-1", Name: "Echo", ArgsDelta: `{"text":"a"}`},
			{Index: 1, ID: "call-2", Name: "Echo", ArgsDelta: `{"text":"b"}`},
		}},
	}}}
	runner, _ := newTestRunner(t, model, permission.RuleSet{}, registry)

	out, err := runner.Submit(context.Background(), "thread-7", "do two things")
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, out.Status)
	require.NotNil(t, out.Interrupt)
	assert.Equal(t, "call-1", out.Interrupt.ToolCall.ID)

	out, err = runner.Submit(context.Background(), "thread-7", "3")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, out.Status, "denying the first ASK must finish the run, not raise a second interrupt")
	assert.True(t, out.State.UserCanceled)

	var sawDenied, sawCanceled bool
	for _, m := range out.State.Messages {
		tm, ok := m.(*types.ToolMessage)
		if !ok {
			continue
		}
		switch tm.CallID {
		case "call-1":
			assert.Contains(t, tm.Content, "permission denied")
			sawDenied = true
		case "call-2":
			assert.Equal(t, "user canceled", tm.Content)
			sawCanceled = true
		}
	}
	assert.True(t, sawDenied, "expected call-1 to be answered with a permission-denied ToolMessage")
	assert.True(t, sawCanceled, "expected call-2 to be synthesized as user canceled rather than re-asked")
}

func TestBusyThreadQueuesInputInsteadOfStartingNewRun(t *testing.T) {
	model := &scriptedModel{}
	runner, cp := newTestRunner(t, model, permission.RuleSet{}, nil)

	busy := &types.AgentState{
		ThreadID: "thread-5",
		AgentID:  "thread-5",
		Messages: []types.Message{&types.UserMessage{Text: "first question"}},
		Node:     NodeExecuteTools,
	}
	require.NoError(t, cp.Save(busy))

	out, err := runner.Submit(context.Background(), "thread-5", "second question")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, out.Status)
}

func TestRecursionLimitEndsRunWithoutExceedingIterationBudget(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(echoDescriptor())
	rules := permission.NewRuleSet([]string{"Echo"}, nil, nil)

	turns := make([][]*types.AssistantChunk, 0, 5)
	for i := 0; i < 5; i++ {
		turns = append(turns, toolCallTurn("call", "Echo", `{"text":"x"}`))
	}
	model := &scriptedModel{turns: turns}

	store := checkpoint.NewMemoryStore()
	cp := checkpoint.New(store)
	w := stream.New(nil)
	disp := tool.New(registry, w)
	engine := permission.NewEngine(rules, permission.NewSessionCache())
	runner := New(Config{
		Model:            model,
		Registry:         registry,
		Dispatcher:       disp,
		Permission:       engine,
		Checkpoint:       cp,
		Writer:           w,
		RecursionLimit:   3,
		MaxContextTokens: 100000,
	})

	out, err := runner.Submit(context.Background(), "thread-6", "loop forever")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, out.Status)
	assert.LessOrEqual(t, out.State.Iteration, 4)
}
