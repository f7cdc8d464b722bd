package darpana

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// parsedFrame is a minimal SSE frame as read back out of the translated
// output, for assertions.
type parsedFrame struct {
	event string
	data  string
}

func parseSSE(t *testing.T, raw string) []parsedFrame {
	t.Helper()
	var frames []parsedFrame
	var cur parsedFrame
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.event != "" {
				frames = append(frames, cur)
				cur = parsedFrame{}
			}
		}
	}
	return frames
}

func TestTranslateOpenAIStream_ScenarioRoundTrip(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
		"",
	}, "\n")

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	ew := NewEventWriter(bw, nil)

	if err := TranslateOpenAIStream(strings.NewReader(upstream), ew, "msg_1", "gpt-4.1-mini"); err != nil {
		t.Fatalf("TranslateOpenAIStream: %v", err)
	}

	frames := parseSSE(t, out.String())
	wantTypes := []string{
		"message_start", "ping", "content_block_start",
		"content_block_delta", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop",
	}
	if len(frames) != len(wantTypes) {
		t.Fatalf("got %d frames, want %d: %+v", len(frames), len(wantTypes), frames)
	}
	for i, want := range wantTypes {
		if frames[i].event != want {
			t.Fatalf("frame[%d].event = %q, want %q", i, frames[i].event, want)
		}
	}

	var concatenated string
	for _, f := range frames {
		if f.event != "content_block_delta" {
			continue
		}
		var d TextDelta
		if err := json.Unmarshal([]byte(f.data), &d); err != nil {
			t.Fatalf("unmarshal delta: %v", err)
		}
		concatenated += d.Delta.Text
	}
	if concatenated != "Hello" {
		t.Fatalf("concatenated text = %q, want %q", concatenated, "Hello")
	}

	var md MessageDeltaData
	if err := json.Unmarshal([]byte(frames[len(frames)-2].data), &md); err != nil {
		t.Fatalf("unmarshal message_delta: %v", err)
	}
	if md.Delta.StopReason != "end_turn" {
		t.Fatalf("stop reason = %q, want end_turn", md.Delta.StopReason)
	}
}

func TestTranslateOpenAIStream_SkipsMalformedChunk(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {not valid json`,
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
		"",
	}, "\n")

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	ew := NewEventWriter(bw, nil)

	if err := TranslateOpenAIStream(strings.NewReader(upstream), ew, "msg_2", "gpt-4.1-mini"); err != nil {
		t.Fatalf("TranslateOpenAIStream: %v", err)
	}

	frames := parseSSE(t, out.String())
	var concatenated string
	for _, f := range frames {
		if f.event != "content_block_delta" {
			continue
		}
		var d TextDelta
		json.Unmarshal([]byte(f.data), &d)
		concatenated += d.Delta.Text
	}
	if concatenated != "ok" {
		t.Fatalf("concatenated = %q, want %q (malformed chunk should be skipped, not abort the stream)", concatenated, "ok")
	}
}

func TestTranslateOpenAIStream_ToolCallAccumulation(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"search","arguments":"{\"q\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"hi\"}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
		"",
	}, "\n")

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	ew := NewEventWriter(bw, nil)

	if err := TranslateOpenAIStream(strings.NewReader(upstream), ew, "msg_3", "gpt-4.1-mini"); err != nil {
		t.Fatalf("TranslateOpenAIStream: %v", err)
	}

	frames := parseSSE(t, out.String())
	var sawToolUseStart bool
	var argsJoined string
	for _, f := range frames {
		if f.event == "content_block_start" && strings.Contains(f.data, "tool_use") {
			sawToolUseStart = true
		}
		if f.event == "content_block_delta" && strings.Contains(f.data, "input_json_delta") {
			var d InputJSONDelta
			json.Unmarshal([]byte(f.data), &d)
			argsJoined += d.Delta.PartialJSON
		}
	}
	if !sawToolUseStart {
		t.Fatalf("expected a tool_use content_block_start, frames=%+v", frames)
	}
	if argsJoined != `{"q":"hi"}` {
		t.Fatalf("argsJoined = %q, want %q", argsJoined, `{"q":"hi"}`)
	}
}
