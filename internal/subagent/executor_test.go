package subagent

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type scriptedModel struct {
	turns [][]*types.AssistantChunk
	idx   int
}

func (m *scriptedModel) Stream(ctx context.Context, messages []types.Message, tools []types.ToolDescriptor) (types.ChunkStream, error) {
	turn := m.turns[m.idx]
	m.idx++
	return &fakeChunkStream{chunks: turn}, nil
}

func (m *scriptedModel) Invoke(ctx context.Context, messages []types.Message) (*types.AssistantMessage, error) {
	panic("not used")
}

func textTurn(text string) []*types.AssistantChunk {
	return []*types.AssistantChunk{{DeltaText: text}}
}

func toolCallTurn(id, name, args string) []*types.AssistantChunk {
	return []*types.AssistantChunk{{ToolCallChunks: []types.ToolCallChunk{{Index: 0, ID: id, Name: name, ArgsDelta: args}}}}
}

func readDescriptor() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:           "Read",
		Readonly:       true,
		Parallelizable: true,
		Handler: func(ctx *types.ToolContext, args json.RawMessage) (*types.ToolResult, error) {
			return &types.ToolResult{Content: "file contents"}, nil
		},
	}
}

func TestExecuteSubtaskReturnsFinalTextAndRelaysEvents(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(readDescriptor())

	descriptors := NewRegistry()
	descriptors.byName["researcher"] = types.AgentDescriptor{
		Name:         "researcher",
		Description:  "reads files",
		SystemPrompt: "you read files",
		Tools:        []string{"Read"},
	}

	model := &scriptedModel{turns: [][]*types.AssistantChunk{
		toolCallTurn("call-1", "Read", `{"file_path":"a.go"}`),
		textTurn("summary of a.go"),
	}}
	rules := permission.NewRuleSet([]string{"Read"}, nil, nil)
	engine := permission.NewEngine(rules, permission.NewSessionCache())

	parentWriter := stream.New(nil)
	ch := parentWriter.Subscribe(16)

	exec := New(Config{
		Model:            model,
		Registry:         registry,
		Permission:       engine,
		Descriptors:      descriptors,
		Writer:           parentWriter,
		MaxContextTokens: 100000,
	})

	toolCtx := &types.ToolContext{Context: context.Background(), TaskID: "task-1"}
	result, err := exec.ExecuteSubtask(toolCtx, "researcher", "summarize a.go")
	require.NoError(t, err)
	assert.Equal(t, "summary of a.go", result)

	var sawLastAIMessage bool
	var sawRelayedSource bool
	for {
		select {
		case e := <-ch:
			if e.Kind == stream.KindLastAIMessage {
				sawLastAIMessage = true
				assert.Equal(t, "summary of a.go", e.Message)
			}
			if e.Source == "task-1" {
				sawRelayedSource = true
			}
			continue
		default:
		}
		break
	}
	assert.True(t, sawLastAIMessage)
	assert.True(t, sawRelayedSource)
}

func TestExecuteSubtaskUnknownAgentErrors(t *testing.T) {
	exec := New(Config{Descriptors: NewRegistry(), Registry: tool.NewRegistry()})
	_, err := exec.ExecuteSubtask(&types.ToolContext{Context: context.Background()}, "nonexistent", "do it")
	assert.Error(t, err)
}

func TestExecuteSubtaskSuspendedBecomesGraphInterrupt(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(readDescriptor())

	descriptors := NewRegistry()
	descriptors.byName["researcher"] = types.AgentDescriptor{
		Name:         "researcher",
		Description:  "reads files",
		SystemPrompt: "you read files",
		Tools:        []string{"Read"},
	}

	model := &scriptedModel{turns: [][]*types.AssistantChunk{
		toolCallTurn("call-1", "Read", `{"file_path":"a.go"}`),
	}}
	// No allow rule for Read: the engine asks, and a sub-agent has no
	// user to answer it.
	engine := permission.NewEngine(permission.RuleSet{}, permission.NewSessionCache())

	exec := New(Config{
		Model:            model,
		Registry:         registry,
		Permission:       engine,
		Descriptors:      descriptors,
		MaxContextTokens: 100000,
	})

	_, err := exec.ExecuteSubtask(&types.ToolContext{Context: context.Background(), TaskID: "task-2"}, "researcher", "summarize a.go")
	require.Error(t, err)
	var gi *types.GraphInterrupt
	assert.ErrorAs(t, err, &gi)
}

func TestExecutorFiltersOutTaskToolFromChildRegistry(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(readDescriptor())
	registry.Register(types.ToolDescriptor{Name: tool.TaskToolName})

	descriptors := NewRegistry()
	descriptors.byName["all-tools"] = types.AgentDescriptor{
		Name:        "all-tools",
		Description: "gets every tool",
		Tools:       []string{"*"},
	}

	desc, _ := descriptors.Get("all-tools")
	filtered := registry.Filtered(desc.Tools, tool.TaskToolName)
	_, hasTask := filtered.Get(tool.TaskToolName)
	assert.False(t, hasTask, "a sub-agent's registry must never include Task")
	_, hasRead := filtered.Get("Read")
	assert.True(t, hasRead)
}
