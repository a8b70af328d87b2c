package compact

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidev/agentcore/internal/stream"
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

type fakeModel struct {
	summaryChunks []string
}

func (m *fakeModel) Stream(ctx context.Context, messages []types.Message, tools []types.ToolDescriptor) (types.ChunkStream, error) {
	var chunks []*types.AssistantChunk
	for _, s := range m.summaryChunks {
		chunks = append(chunks, &types.AssistantChunk{DeltaText: s})
	}
	return &fakeChunkStream{chunks: chunks}, nil
}

func (m *fakeModel) Invoke(ctx context.Context, messages []types.Message) (*types.AssistantMessage, error) {
	return nil, errors.New("not implemented")
}

func TestShouldCompactBoundary(t *testing.T) {
	c := New(Config{MaxContextTokens: 1000, Threshold: 0.92})

	// 920 tokens ~= 3680 chars of content, exactly at threshold.
	at := []types.Message{&types.UserMessage{Text: string(make([]byte, 3680))}}
	assert.True(t, c.ShouldCompact(at))

	below := []types.Message{&types.UserMessage{Text: string(make([]byte, 3670))}}
	assert.False(t, c.ShouldCompact(below))
}

func TestCompactReplacesLogWithMarkerAndSummary(t *testing.T) {
	model := &fakeModel{summaryChunks: []string{"1. Technical Context\n", "summary body"}}
	w := stream.New(nil)
	ch := w.Subscribe(8)
	c := New(Config{Model: model, MaxContextTokens: 1000, Writer: w})

	original := []types.Message{
		&types.UserMessage{Text: "please fix foo()"},
		&types.AssistantMessage{Text: "done", ToolCalls: []types.ToolCall{{ID: "1", Name: "Edit"}}},
		&types.ToolMessage{CallID: "1", Content: "patched"},
	}

	replaced, err := c.Compact(context.Background(), original)
	require.NoError(t, err)
	require.Len(t, replaced, 2)

	marker, ok := replaced[0].(*types.UserMessage)
	require.True(t, ok)
	assert.Contains(t, marker.Text, "automatic compaction")

	summary, ok := replaced[1].(*types.AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, "1. Technical Context\nsummary body", summary.Text)

	var deltas int
	for i := 0; i < 2; i++ {
		e := <-ch
		assert.Equal(t, SourceTag, e.Source)
		deltas++
	}
	assert.Equal(t, 2, deltas)
}
