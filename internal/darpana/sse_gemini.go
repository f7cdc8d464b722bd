package darpana

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type geminiStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// TranslateGeminiStream reads a Gemini streamGenerateContent SSE body and
// emits the equivalent Anthropic-dialect event sequence to ew, mirroring
// TranslateOpenAIStream's structure and malformed-chunk handling.
func TranslateGeminiStream(r io.Reader, ew *EventWriter, id, model string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSEChunkBytes)

	if err := emitMessageStart(ew, id, model); err != nil {
		return err
	}

	textBlockOpened := false
	textBlockIndex := -1
	nextBlockIndex := 0
	stopReason := StopEndTurn

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" {
			continue
		}

		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]

		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				if !textBlockOpened {
					textBlockIndex = nextBlockIndex
					if err := emitContentBlockStart(ew, textBlockIndex, "text"); err != nil {
						return err
					}
					textBlockOpened = true
					nextBlockIndex++
				}
				if err := emitTextDelta(ew, textBlockIndex, p.Text); err != nil {
					return err
				}
			}
			if p.FunctionCall != nil {
				idx := nextBlockIndex
				nextBlockIndex++
				if err := emitContentBlockStart(ew, idx, "tool_use"); err != nil {
					return err
				}
				args, _ := json.Marshal(p.FunctionCall.Args)
				if err := emitInputJSONDelta(ew, idx, string(args)); err != nil {
					return err
				}
				if err := ew.Write(Event{Type: EventContentBlockStop, Data: ContentBlockStopData{Index: idx}}); err != nil {
					return err
				}
				stopReason = StopToolUse
			}
		}

		if cand.FinishReason != "" && stopReason != StopToolUse {
			stopReason = FromGeminiFinishReason(cand.FinishReason)
		}
	}

	if err := scanner.Err(); err != nil {
		return ew.WriteSyntheticError(fmt.Sprintf("upstream stream error: %v", err))
	}

	if textBlockOpened {
		if err := ew.Write(Event{Type: EventContentBlockStop, Data: ContentBlockStopData{Index: textBlockIndex}}); err != nil {
			return err
		}
	}

	return emitMessageEnd(ew, stopReason)
}
