// Package darpana implements the LLM proxy router: it accepts requests in
// a normalized Anthropic-style dialect, resolves the target provider from
// the requested model name, translates the request, forwards it upstream,
// and translates the (possibly streamed) response back.
package darpana

// Role is a normalized message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags which variant of ContentBlock is populated.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
)

// ImageSource describes an inline base64 image, Anthropic-dialect style.
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentBlock is the tagged-variant unit of message content. Only the
// fields matching Type are populated.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockImage
	Image ImageSource `json:"source,omitempty"`

	// BlockToolUse
	ToolUseID string         `json:"id,omitempty"`
	ToolName  string         `json:"name,omitempty"`
	ToolInput map[string]any `json:"input,omitempty"`

	// BlockToolResult
	ToolResultForID string `json:"tool_use_id,omitempty"`
	ToolResult      string `json:"content,omitempty"`
	ToolResultError bool   `json:"is_error,omitempty"`

	// BlockThinking
	Thinking string `json:"thinking,omitempty"`
}

// Message is one turn in the normalized request dialect.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ToolChoiceMode selects how the model should use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice mirrors the Anthropic-dialect tool_choice shape.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"type"`
	Name string         `json:"name,omitempty"` // set when Mode == ToolChoiceTool
}

// ToolDefinition describes one callable tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// CompletionRequest is the normalized request the proxy accepts from
// clients, modeled on the Anthropic Messages API shape.
type CompletionRequest struct {
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Messages    []Message        `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  *ToolChoice      `json:"tool_choice,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// StopReason is the normalized completion-stop reason.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopToolUse   StopReason = "tool_use"
	StopStopSeq   StopReason = "stop_sequence"
)

// Usage is normalized token accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CompletionResponse is the normalized non-streaming response shape.
type CompletionResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       Role           `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}
