package darpana

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxSSEChunkBytes bounds how much unprocessed buffer a single malformed or
// overlong upstream chunk may occupy before the upstream connection is
// torn down, per spec §4.6.
const maxSSEChunkBytes = 1 << 20 // 1 MiB

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// TranslateOpenAIStream reads an OpenAI-compatible text/event-stream body
// and emits the equivalent Anthropic-dialect event sequence to ew. On a
// line that fails to parse as JSON, the chunk is skipped (the stream
// continues); on a line exceeding maxSSEChunkBytes, the upstream read is
// abandoned and a synthetic error event closes the stream.
func TranslateOpenAIStream(r io.Reader, ew *EventWriter, id, model string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSEChunkBytes)

	if err := emitMessageStart(ew, id, model); err != nil {
		return err
	}

	textBlockOpened := false
	toolBlockIndex := map[int]int{}
	nextBlockIndex := 0
	stopReason := StopEndTurn

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // malformed chunk: skip, never corrupt the client stream
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if !textBlockOpened {
				if err := emitContentBlockStart(ew, nextBlockIndex, "text"); err != nil {
					return err
				}
				textBlockOpened = true
				nextBlockIndex++
			}
			if err := emitTextDelta(ew, nextBlockIndex-1, choice.Delta.Content); err != nil {
				return err
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx, ok := toolBlockIndex[tc.Index]
			if !ok {
				idx = nextBlockIndex
				toolBlockIndex[tc.Index] = idx
				nextBlockIndex++
				if err := emitContentBlockStart(ew, idx, "tool_use"); err != nil {
					return err
				}
			}
			if tc.Function.Arguments != "" {
				if err := emitInputJSONDelta(ew, idx, tc.Function.Arguments); err != nil {
					return err
				}
			}
		}

		if choice.FinishReason != nil {
			stopReason = FromOpenAIFinishReason(*choice.FinishReason)
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return ew.WriteSyntheticError(fmt.Sprintf("upstream stream error: %v", err))
	}

	if textBlockOpened || len(toolBlockIndex) > 0 {
		lastIndex := nextBlockIndex - 1
		if err := ew.Write(Event{Type: EventContentBlockStop, Data: ContentBlockStopData{Index: lastIndex}}); err != nil {
			return err
		}
	}

	return emitMessageEnd(ew, stopReason)
}

func emitMessageStart(ew *EventWriter, id, model string) error {
	var data MessageStartData
	data.Message.ID = id
	data.Message.Model = model
	data.Message.Role = string(RoleAssistant)
	if err := ew.Write(Event{Type: EventMessageStart, Data: data}); err != nil {
		return err
	}
	return ew.Write(Event{Type: EventPing, Data: struct{}{}})
}

func emitContentBlockStart(ew *EventWriter, index int, blockType string) error {
	var data ContentBlockStartData
	data.Index = index
	data.ContentBlock.Type = blockType
	return ew.Write(Event{Type: EventContentBlockStart, Data: data})
}

func emitTextDelta(ew *EventWriter, index int, text string) error {
	var data TextDelta
	data.Index = index
	data.Delta.Type = "text_delta"
	data.Delta.Text = text
	return ew.Write(Event{Type: EventContentBlockDelta, Data: data})
}

func emitInputJSONDelta(ew *EventWriter, index int, partialJSON string) error {
	var data InputJSONDelta
	data.Index = index
	data.Delta.Type = "input_json_delta"
	data.Delta.PartialJSON = partialJSON
	return ew.Write(Event{Type: EventContentBlockDelta, Data: data})
}

func emitMessageEnd(ew *EventWriter, stopReason StopReason) error {
	var data MessageDeltaData
	data.Delta.StopReason = string(stopReason)
	if err := ew.Write(Event{Type: EventMessageDelta, Data: data}); err != nil {
		return err
	}
	return ew.Write(Event{Type: EventMessageStop, Data: struct{}{}})
}
