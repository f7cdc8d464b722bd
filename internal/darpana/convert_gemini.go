package darpana

import (
	"fmt"
	"net/url"

	"google.golang.org/genai"
)

// ToGeminiRequest converts a normalized request into the genai wire shape.
// The system prompt becomes a separate systemInstruction per spec §4.6.
func ToGeminiRequest(req CompletionRequest) (*genai.GenerateContentConfig, []*genai.Content) {
	var config *genai.GenerateContentConfig
	if req.System != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: req.System}},
			},
		}
	}
	if req.MaxTokens > 0 {
		if config == nil {
			config = &genai.GenerateContentConfig{}
		}
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: toGeminiParts(m.Content)})
	}
	return config, contents
}

func toGeminiParts(blocks []ContentBlock) []*genai.Part {
	parts := make([]*genai.Part, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case BlockText:
			parts = append(parts, &genai.Part{Text: b.Text})
		case BlockImage:
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: b.Image.MediaType, Data: []byte(b.Image.Data)},
			})
		case BlockToolUse:
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: b.ToolName, Args: b.ToolInput},
			})
		case BlockToolResult:
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     b.ToolResultForID,
					Response: map[string]any{"result": b.ToolResult},
				},
			})
		case BlockThinking:
			// Dropped: Gemini has no equivalent input slot for assistant thinking.
		}
	}
	return parts
}

// GeminiUpstreamURL builds the generateContent/streamGenerateContent URL
// with the provider's model-name substitution and API key, per spec §4.6.
func GeminiUpstreamURL(baseURL, model, apiKey string, stream bool) string {
	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
	}
	u := fmt.Sprintf("%s/v1beta/models/%s:%s", baseURL, url.PathEscape(model), method)
	q := url.Values{}
	q.Set("key", apiKey)
	if stream {
		q.Set("alt", "sse")
	}
	return u + "?" + q.Encode()
}

// FromGeminiFinishReason maps a Gemini finishReason to a normalized stop reason.
func FromGeminiFinishReason(reason string) StopReason {
	switch reason {
	case "MAX_TOKENS":
		return StopMaxTokens
	case "STOP", "":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}

// FromGeminiResponse converts a non-streaming genai response into the
// normalized dialect.
func FromGeminiResponse(resp *genai.GenerateContentResponse) CompletionResponse {
	out := CompletionResponse{Role: RoleAssistant}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return out
	}
	cand := resp.Candidates[0]
	out.StopReason = FromGeminiFinishReason(string(cand.FinishReason))
	if cand.Content == nil {
		return out
	}
	for _, p := range cand.Content.Parts {
		switch {
		case p.Text != "":
			out.Content = append(out.Content, ContentBlock{Type: BlockText, Text: p.Text})
		case p.FunctionCall != nil:
			out.Content = append(out.Content, ContentBlock{
				Type:      BlockToolUse,
				ToolName:  p.FunctionCall.Name,
				ToolInput: p.FunctionCall.Args,
			})
			out.StopReason = StopToolUse
		}
	}
	return out
}
