package types

import "context"

// AssistantChunk is one streamed fragment from the LLM adapter's Stream
// operation (spec §6). DeltaText carries incremental assistant text;
// ToolCallChunks carries incremental tool-call construction (an LLM may
// stream a tool call's arguments across several chunks before the call
// is complete); Usage is populated on the terminal chunk of a turn.
type AssistantChunk struct {
	ID             string
	DeltaText      string
	ToolCallChunks []ToolCallChunk
	Usage          *TokenUsage
	FinishReason   string
}

// ToolCallChunk is one incremental fragment of a tool call as it is
// streamed. Index groups chunks belonging to the same call when the
// provider does not repeat the call ID on every chunk.
type ToolCallChunk struct {
	Index     int
	ID        string
	Name      string
	ArgsDelta string
}

// ChatModel is the injected LLM adapter dependency (spec §6): Stream
// drives the Reason node's token-by-token loop and the Compactor's
// summary request; Invoke is for one-shot, non-streaming calls.
type ChatModel interface {
	Stream(ctx context.Context, messages []Message, tools []ToolDescriptor) (ChunkStream, error)
	Invoke(ctx context.Context, messages []Message) (*AssistantMessage, error)
}

// ChunkStream is returned by ChatModel.Stream. Recv returns io.EOF (via
// the caller's chosen sentinel) when the stream is exhausted.
type ChunkStream interface {
	Recv() (*AssistantChunk, error)
	Close() error
}

// AgentDescriptor describes a sub-agent loadable from built-in code or
// a Markdown front-matter file (spec §6): {agent_name, description,
// system_prompt?, tools?: "*" | [name], model?}.
type AgentDescriptor struct {
	Name         string
	Description  string
	SystemPrompt string
	// Tools is nil or ["*"] for "all tools"; otherwise an explicit
	// allowlist of tool names.
	Tools []string
	Model string
	// BuiltIn marks the unconditional general-purpose agent (spec §6).
	BuiltIn bool
}

// AllowsTool reports whether this descriptor's allowlist permits name.
// A nil list or a single "*" entry permits every tool.
func (d AgentDescriptor) AllowsTool(name string) bool {
	if len(d.Tools) == 0 {
		return true
	}
	for _, t := range d.Tools {
		if t == "*" || t == name {
			return true
		}
	}
	return false
}
