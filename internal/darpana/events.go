package darpana

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// EventType names an Anthropic-dialect SSE event.
type EventType string

const (
	EventMessageStart      EventType = "message_start"
	EventPing               EventType = "ping"
	EventContentBlockStart EventType = "content_block_start"
	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventMessageDelta      EventType = "message_delta"
	EventMessageStop       EventType = "message_stop"
	EventError             EventType = "error"
)

// Event is one emitted Anthropic-dialect SSE frame.
type Event struct {
	Type EventType
	Data any
}

// MessageStartData is the payload of a message_start event.
type MessageStartData struct {
	Message struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Role  string `json:"role"`
	} `json:"message"`
}

// ContentBlockStartData is the payload of a content_block_start event.
type ContentBlockStartData struct {
	Index        int `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
	} `json:"content_block"`
}

// TextDelta is one content_block_delta payload variant carrying text.
type TextDelta struct {
	Index int `json:"index"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// InputJSONDelta is one content_block_delta payload variant carrying a
// partial tool-call argument fragment.
type InputJSONDelta struct {
	Index int `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

// ContentBlockStopData is the payload of a content_block_stop event.
type ContentBlockStopData struct {
	Index int `json:"index"`
}

// MessageDeltaData is the payload of a message_delta event.
type MessageDeltaData struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *Usage `json:"usage,omitempty"`
}

// ErrorData is the payload of a synthetic error event emitted when an
// upstream stream cannot be translated safely (spec §4.6 malformed-chunk
// and buffer-overflow handling).
type ErrorData struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EventWriter serializes Event values as SSE frames and flushes after each
// one, so the client sees them as they're produced rather than batched.
type EventWriter struct {
	w       *bufio.Writer
	flusher func() error
}

// NewEventWriter wraps w for SSE output. flush is called after every
// written event (typically http.Flusher.Flush wrapped to return nil).
func NewEventWriter(w *bufio.Writer, flush func() error) *EventWriter {
	return &EventWriter{w: w, flusher: flush}
}

// Write serializes and flushes one event.
func (ew *EventWriter) Write(ev Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("darpana: marshal event %s: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(ew.w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return err
	}
	if err := ew.w.Flush(); err != nil {
		return err
	}
	if ew.flusher != nil {
		return ew.flusher()
	}
	return nil
}

// WriteSyntheticError emits an error event followed immediately by stream
// close, per spec §7's user-visible-behavior contract for SSE errors.
func (ew *EventWriter) WriteSyntheticError(message string) error {
	return ew.Write(Event{Type: EventError, Data: ErrorData{Type: "error", Message: message}})
}

// CopyRaw forwards already-framed SSE bytes unchanged (the passthrough
// path), flushing after every chunk so the client sees them as produced.
func (ew *EventWriter) CopyRaw(r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := ew.w.Write(buf[:n]); err != nil {
				return err
			}
			if err := ew.w.Flush(); err != nil {
				return err
			}
			if ew.flusher != nil {
				if err := ew.flusher(); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
