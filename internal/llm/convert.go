package llm

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/aidev/agentcore/pkg/types"
)

// toEinoMessages converts the injected Message union into Eino's
// schema.Message slice, grounded on provider.ConvertToEinoMessages:
// each Message kind maps to a schema.Role, and an AssistantMessage's
// tool calls become schema.ToolCall entries; a ToolMessage carries its
// CallID in ToolCallID so the provider can correlate the reply.
func toEinoMessages(messages []types.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch msg := m.(type) {
		case *types.SystemMessage:
			out = append(out, &schema.Message{Role: schema.System, Content: msg.Text})
		case *types.UserMessage:
			out = append(out, &schema.Message{Role: schema.User, Content: msg.Text})
		case *types.AssistantMessage:
			calls := make([]schema.ToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				calls = append(calls, schema.ToolCall{
					ID:       tc.ID,
					Function: schema.FunctionCall{Name: tc.Name, Arguments: string(tc.Args)},
				})
			}
			out = append(out, &schema.Message{Role: schema.Assistant, Content: msg.Text, ToolCalls: calls})
		case *types.ToolMessage:
			out = append(out, &schema.Message{Role: schema.Tool, Content: msg.Content, ToolCallID: msg.CallID})
		}
	}
	return out
}

// toEinoTools converts the registry's tool descriptors into Eino
// ToolInfo values, grounded on provider.ConvertToEinoTools and
// parseJSONSchemaToParams; tools with no ArgSchema get an empty
// parameter set rather than being skipped.
func toEinoTools(tools []types.ToolDescriptor) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.ArgSchema) > 0 {
			params = parseJSONSchemaParams(t.ArgSchema)
		}
		out = append(out, &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return out
}

func parseJSONSchemaParams(raw json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &jsonSchema); err != nil {
		return nil
	}

	required := make(map[string]bool, len(jsonSchema.Required))
	for _, r := range jsonSchema.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(jsonSchema.Properties))
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: required[name],
		}
	}
	return params
}

// fromEinoMessage converts a complete, non-streaming Eino response into
// an AssistantMessage (used by Invoke).
func fromEinoMessage(msg *schema.Message) *types.AssistantMessage {
	out := &types.AssistantMessage{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		out.Usage = &types.TokenUsage{
			Input:  msg.ResponseMeta.Usage.PromptTokens,
			Output: msg.ResponseMeta.Usage.CompletionTokens,
		}
	}
	return out
}
