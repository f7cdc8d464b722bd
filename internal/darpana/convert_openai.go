package darpana

import (
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// isOSeriesModel reports whether model is one of OpenAI's reasoning
// ("o-series") models, which take max_completion_tokens instead of
// max_tokens and reject most sampling parameters.
func isOSeriesModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4")
}

// ToOpenAIRequest converts a normalized request into the go-openai wire
// shape for the given upstream model name.
func ToOpenAIRequest(req CompletionRequest, upstreamModel string) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:  upstreamModel,
		Stream: req.Stream,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, toOpenAIMessages(m)...)
	}

	if len(req.Tools) > 0 {
		out.Tools = toOpenAITools(req.Tools)
	}
	if req.ToolChoice != nil {
		out.ToolChoice = toOpenAIToolChoice(*req.ToolChoice)
	}

	if req.MaxTokens > 0 {
		if isOSeriesModel(upstreamModel) {
			out.MaxCompletionTokens = req.MaxTokens
		} else {
			out.MaxTokens = req.MaxTokens
		}
	}
	if req.Temperature != nil && !isOSeriesModel(upstreamModel) {
		out.Temperature = float32(*req.Temperature)
	}

	return out
}

// toOpenAIMessages expands one normalized message into zero or more
// OpenAI messages: a tool_result block becomes a standalone role:tool
// message, per spec.
func toOpenAIMessages(m Message) []openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if m.Role == RoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}

	var parts []openai.ChatMessagePart
	var toolCalls []openai.ToolCall
	var out []openai.ChatCompletionMessage

	for _, b := range m.Content {
		switch b.Type {
		case BlockText:
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: b.Text})
		case BlockImage:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:" + b.Image.MediaType + ";base64," + b.Image.Data,
				},
			})
		case BlockToolUse:
			args, _ := json.Marshal(b.ToolInput)
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   b.ToolUseID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      b.ToolName,
					Arguments: string(args),
				},
			})
		case BlockToolResult:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    b.ToolResult,
				ToolCallID: b.ToolResultForID,
			})
		case BlockThinking:
			// Thinking blocks are dropped for OpenAI-compatible upstreams.
		}
	}

	if len(parts) > 0 || len(toolCalls) > 0 {
		msg := openai.ChatCompletionMessage{Role: role, ToolCalls: toolCalls}
		if len(parts) == 1 && parts[0].Type == openai.ChatMessagePartTypeText {
			msg.Content = parts[0].Text
		} else if len(parts) > 0 {
			msg.MultiContent = parts
		}
		out = append([]openai.ChatCompletionMessage{msg}, out...)
	}

	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return out
}

func toOpenAIToolChoice(tc ToolChoice) any {
	switch tc.Mode {
	case ToolChoiceAuto:
		return "auto"
	case ToolChoiceNone:
		return "none"
	case ToolChoiceAny:
		return "required"
	case ToolChoiceTool:
		return openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: tc.Name}}
	default:
		return "auto"
	}
}

// FromOpenAIFinishReason maps an OpenAI finish_reason to a normalized stop reason.
func FromOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "length":
		return StopMaxTokens
	case "tool_calls", "function_call":
		return StopToolUse
	case "stop":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}

// FromOpenAIResponse converts a non-streaming OpenAI response into the
// normalized dialect.
func FromOpenAIResponse(resp openai.ChatCompletionResponse) CompletionResponse {
	out := CompletionResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Role:  RoleAssistant,
		Usage: Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.StopReason = FromOpenAIFinishReason(string(choice.FinishReason))

	if choice.Message.Content != "" {
		out.Content = append(out.Content, ContentBlock{Type: BlockText, Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.Content = append(out.Content, ContentBlock{
			Type:      BlockToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			ToolInput: args,
		})
	}
	return out
}
