// Package llm adapts Eino chat models (the teacher's
// internal/provider package) to the core's provider-neutral
// types.ChatModel interface (spec §6): Stream for the Reason node's
// token loop and the Compactor's summary request, Invoke for
// one-shot, non-streaming calls.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/aidev/agentcore/pkg/types"
)

// ProviderConfig selects and configures one of the two Eino model
// backends wired into this build, grounded on the teacher's
// AnthropicConfig/OpenAIConfig (internal/provider/anthropic.go,
// openai.go).
type ProviderConfig struct {
	Provider    string // "anthropic" or "openai"
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// einoModel wraps an Eino model.ToolCallingChatModel behind
// types.ChatModel, doing the Message<->schema.Message and
// ToolDescriptor<->schema.ToolInfo conversions at the boundary so the
// Agent Runner never imports Eino directly.
type einoModel struct {
	chat        model.ToolCallingChatModel
	temperature float64
	maxTokens   int
}

// NewChatModel constructs the Eino-backed model named by cfg.Provider
// (spec §6 "LLM adapter... injected dependency").
func NewChatModel(ctx context.Context, cfg ProviderConfig) (types.ChatModel, error) {
	switch cfg.Provider {
	case "anthropic", "claude", "":
		return newAnthropicModel(ctx, cfg)
	case "openai":
		return newOpenAIModel(ctx, cfg)
	default:
		return nil, &types.ConfigError{Msg: fmt.Sprintf("llm: unknown provider %q", cfg.Provider)}
	}
}

func newAnthropicModel(ctx context.Context, cfg ProviderConfig) (types.ChatModel, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, &types.ConfigError{Msg: "llm: ANTHROPIC_API_KEY not set"}
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	claudeCfg := &claude.Config{APIKey: apiKey, Model: modelID, MaxTokens: maxTokens}
	if cfg.BaseURL != "" {
		claudeCfg.BaseURL = &cfg.BaseURL
	}

	chat, err := claude.NewChatModel(ctx, claudeCfg)
	if err != nil {
		return nil, fmt.Errorf("llm: construct claude chat model: %w", err)
	}
	return &einoModel{chat: chat, temperature: cfg.Temperature, maxTokens: maxTokens}, nil
}

func newOpenAIModel(ctx context.Context, cfg ProviderConfig) (types.ChatModel, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, &types.ConfigError{Msg: "llm: OPENAI_API_KEY not set"}
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = "gpt-4o"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	openaiCfg := &openai.ChatModelConfig{APIKey: apiKey, Model: modelID, MaxCompletionTokens: &maxTokens}
	if cfg.BaseURL != "" {
		openaiCfg.BaseURL = cfg.BaseURL
	}

	chat, err := openai.NewChatModel(ctx, openaiCfg)
	if err != nil {
		return nil, fmt.Errorf("llm: construct openai chat model: %w", err)
	}
	return &einoModel{chat: chat, temperature: cfg.Temperature, maxTokens: maxTokens}, nil
}

// Stream implements types.ChatModel.
func (m *einoModel) Stream(ctx context.Context, messages []types.Message, tools []types.ToolDescriptor) (types.ChunkStream, error) {
	chat := m.chat
	if len(tools) > 0 {
		bound, err := chat.WithTools(toEinoTools(tools))
		if err != nil {
			return nil, fmt.Errorf("llm: bind tools: %w", err)
		}
		chat = bound
	}

	reader, err := chat.Stream(ctx, toEinoMessages(messages), m.options()...)
	if err != nil {
		return nil, fmt.Errorf("llm: stream: %w", err)
	}
	return &einoChunkStream{reader: reader}, nil
}

// Invoke implements types.ChatModel for one-shot calls that do not
// need tool binding or incremental deltas. The Compactor's summary
// request goes through Stream, not Invoke.
func (m *einoModel) Invoke(ctx context.Context, messages []types.Message) (*types.AssistantMessage, error) {
	msg, err := m.chat.Generate(ctx, toEinoMessages(messages), m.options()...)
	if err != nil {
		return nil, fmt.Errorf("llm: invoke: %w", err)
	}
	return fromEinoMessage(msg), nil
}

func (m *einoModel) options() []model.Option {
	var opts []model.Option
	if m.temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(m.temperature)))
	}
	if m.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(m.maxTokens))
	}
	return opts
}

// einoChunkStream adapts schema.StreamReader[*schema.Message] to
// types.ChunkStream, translating each delta message into an
// AssistantChunk (text delta plus any partial tool-call fragments).
type einoChunkStream struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *einoChunkStream) Recv() (*types.AssistantChunk, error) {
	msg, err := s.reader.Recv()
	if err != nil {
		return nil, err
	}

	chunk := &types.AssistantChunk{DeltaText: msg.Content}
	for i, tc := range msg.ToolCalls {
		idx := i
		if tc.Index != nil {
			idx = *tc.Index
		}
		chunk.ToolCallChunks = append(chunk.ToolCallChunks, types.ToolCallChunk{
			Index:     idx,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			ArgsDelta: tc.Function.Arguments,
		})
	}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		chunk.Usage = &types.TokenUsage{
			Input:  msg.ResponseMeta.Usage.PromptTokens,
			Output: msg.ResponseMeta.Usage.CompletionTokens,
		}
		if msg.ResponseMeta.FinishReason != "" {
			chunk.FinishReason = msg.ResponseMeta.FinishReason
		}
	}
	return chunk, nil
}

func (s *einoChunkStream) Close() error {
	s.reader.Close()
	return nil
}
