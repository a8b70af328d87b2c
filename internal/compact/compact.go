// Package compact implements the Context Compactor (C10): detects
// token pressure in a thread's message log and replaces it with an
// 8-section structured summary produced by a side model call (spec
// §4.10). Grounded on the teacher's internal/session/compact.go
// processCompaction flow, with the threshold raised from 0.75 to the
// spec's 0.92 and the summary prompt expanded from 5 to 8 sections.
package compact

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aidev/agentcore/internal/stream"
	"github.com/aidev/agentcore/pkg/types"
)

// SourceTag is the stream Source used for compaction progress events so
// the UI can display a throw-away summary stream without mixing it
// into the normal assistant-output stream (spec §4.10).
const SourceTag = "compaction"

// Config controls Compactor behavior.
type Config struct {
	Model types.ChatModel

	// Threshold is the fraction of MaxContextTokens that triggers
	// compaction (spec §4.10, §9: "a policy knob, not a contract;
	// implementers must expose it"). Default 0.92.
	Threshold float64

	// MaxContextTokens is the configured context budget against which
	// Threshold is measured.
	MaxContextTokens int

	// Writer, if non-nil, receives compaction progress tagged with
	// SourceTag via Relay.
	Writer *stream.Writer
}

// Compactor summarizes a thread's message log in place when estimated
// token usage crosses Threshold (spec §4.10, C10).
type Compactor struct {
	cfg Config
}

// New constructs a Compactor. A zero Threshold defaults to 0.92.
func New(cfg Config) *Compactor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.92
	}
	return &Compactor{cfg: cfg}
}

// EstimateTokens provides the same rough ~4-characters-per-token
// estimate the teacher uses (internal/session/compact.go
// estimateTokens), applied across a message log's text content.
func EstimateTokens(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += len(textOf(m))
	}
	return total / 4
}

func textOf(m types.Message) string {
	switch v := m.(type) {
	case *types.SystemMessage:
		return v.Text
	case *types.UserMessage:
		return v.Text
	case *types.AssistantMessage:
		return v.Text
	case *types.ToolMessage:
		return v.Content
	default:
		return ""
	}
}

// ShouldCompact reports whether messages' estimated token usage has
// reached c.cfg.Threshold of c.cfg.MaxContextTokens (spec §8 boundary
// behavior: triggers at exactly the threshold, not just above it).
func (c *Compactor) ShouldCompact(messages []types.Message) bool {
	if c.cfg.MaxContextTokens <= 0 {
		return false
	}
	estimated := EstimateTokens(messages)
	return float64(estimated) >= c.cfg.Threshold*float64(c.cfg.MaxContextTokens)
}

const compactionSystemPrompt = `You are a conversation summarizer for an AI coding assistant. Produce a structured summary of the conversation below that preserves everything needed to continue the work seamlessly. Use exactly these eight sections, each with a short heading:

1. Technical Context
2. Project Overview
3. Code Changes
4. Debugging
5. Current Status
6. Pending Tasks
7. User Preferences
8. Key Decisions

Be concise but do not drop information a developer would need to pick up the work cold.`

// Compact issues a side model call that summarizes messages into the
// eight-section structure above, and returns the replacement log: a
// synthesized User marker noting automatic compaction, followed by the
// summary as an Assistant message (spec §4.10: "the returned assistant
// message replaces the prior log, prefixed by a synthesized User
// marker").
func (c *Compactor) Compact(ctx context.Context, messages []types.Message) ([]types.Message, error) {
	prompt := buildSummaryPrompt(messages)

	request := []types.Message{
		&types.SystemMessage{Text: compactionSystemPrompt},
		&types.UserMessage{Text: prompt},
	}

	summary, err := c.streamSummary(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("compact: summarize: %w", err)
	}

	marker := &types.UserMessage{Text: "[automatic compaction] The conversation above was summarized to stay within the context budget. Continue from the summary below."}
	assistant := &types.AssistantMessage{Text: summary}
	return []types.Message{marker, assistant}, nil
}

func (c *Compactor) streamSummary(ctx context.Context, request []types.Message) (string, error) {
	chunks, err := c.cfg.Model.Stream(ctx, request, nil)
	if err != nil {
		return "", err
	}
	defer chunks.Close()

	var sb strings.Builder
	for {
		chunk, err := chunks.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if chunk.DeltaText == "" {
			continue
		}
		sb.WriteString(chunk.DeltaText)
		c.emit(stream.MessageDelta("compaction-summary", chunk.DeltaText, 0))
	}
	return sb.String(), nil
}

func (c *Compactor) emit(e stream.Event) {
	if c.cfg.Writer != nil {
		c.cfg.Writer.Relay(SourceTag, e)
	}
}

// buildSummaryPrompt renders messages into the transcript format the
// summarizer model consumes (grounded on
// internal/session/compact.go's buildSummaryPrompt).
func buildSummaryPrompt(messages []types.Message) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation between a user and an AI coding assistant.\n\n---\n\n")

	for _, m := range messages {
		switch v := m.(type) {
		case *types.SystemMessage:
			continue
		case *types.UserMessage:
			sb.WriteString("USER:\n")
			sb.WriteString(v.Text)
			sb.WriteString("\n\n")
		case *types.AssistantMessage:
			sb.WriteString("ASSISTANT:\n")
			if v.Text != "" {
				sb.WriteString(v.Text)
				sb.WriteString("\n")
			}
			for _, tc := range v.ToolCalls {
				fmt.Fprintf(&sb, "[Tool call: %s]\n", tc.Name)
			}
			sb.WriteString("\n")
		case *types.ToolMessage:
			output := v.Content
			if len(output) > 500 {
				output = output[:500] + "..."
			}
			sb.WriteString("[Tool result]\n")
			sb.WriteString(output)
			sb.WriteString("\n\n")
		}
	}

	return sb.String()
}
