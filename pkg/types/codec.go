package types

import (
	"encoding/json"
	"fmt"
)

// wireMessage is the on-disk/over-the-wire envelope for a Message. The
// core keeps Message as a closed Go interface for in-process exhaustive
// handling (spec §9, closed tagged union), but the Checkpointer and any
// future wire transport need a concrete, taggable shape to (de)serialize.
type wireMessage struct {
	Role      Role            `json:"role"`
	Text      string          `json:"text,omitempty"`
	ToolCalls []ToolCall      `json:"tool_calls,omitempty"`
	Usage     *TokenUsage     `json:"usage,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Artifact  json.RawMessage `json:"artifact,omitempty"`
}

// MarshalMessages converts a closed-union Message slice into its wire
// form, suitable for Checkpointer persistence.
func MarshalMessages(messages []Message) ([]byte, error) {
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		switch v := m.(type) {
		case *SystemMessage:
			wire = append(wire, wireMessage{Role: RoleSystem, Text: v.Text})
		case *UserMessage:
			wire = append(wire, wireMessage{Role: RoleUser, Text: v.Text})
		case *AssistantMessage:
			wire = append(wire, wireMessage{Role: RoleAssistant, Text: v.Text, ToolCalls: v.ToolCalls, Usage: v.Usage})
		case *ToolMessage:
			artifact, _ := json.Marshal(v.Artifact)
			wire = append(wire, wireMessage{Role: RoleTool, CallID: v.CallID, Content: v.Content, Artifact: artifact})
		default:
			return nil, fmt.Errorf("types: unknown message kind %T", m)
		}
	}
	return json.Marshal(wire)
}

// UnmarshalMessages is the inverse of MarshalMessages.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var wire []wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	messages := make([]Message, 0, len(wire))
	for _, w := range wire {
		switch w.Role {
		case RoleSystem:
			messages = append(messages, &SystemMessage{Text: w.Text})
		case RoleUser:
			messages = append(messages, &UserMessage{Text: w.Text})
		case RoleAssistant:
			messages = append(messages, &AssistantMessage{Text: w.Text, ToolCalls: w.ToolCalls, Usage: w.Usage})
		case RoleTool:
			var artifact any
			if len(w.Artifact) > 0 {
				_ = json.Unmarshal(w.Artifact, &artifact)
			}
			messages = append(messages, &ToolMessage{CallID: w.CallID, Content: w.Content, Artifact: artifact})
		default:
			return nil, fmt.Errorf("types: unknown wire role %q", w.Role)
		}
	}
	return messages, nil
}
