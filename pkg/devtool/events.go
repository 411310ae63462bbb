package devtool

import (
	"encoding/json"
	"time"
)

// Notification methods that are routed to the console event buffer.
const (
	methodConsoleAPICalled  = "Runtime.consoleAPICalled"
	methodConsoleMessage    = "Console.messageAdded"
	methodExceptionThrown   = "Runtime.exceptionThrown"
	methodExecutionContexts = "Runtime.executionContextsCleared"
)

// ConsoleEvent is one asynchronous notification captured from the remote
// application, typically a console line emitted by the sync plugin.
type ConsoleEvent struct {
	// Category is the console level ("log", "warning", "error", ...) or the
	// raw notification method for non-console notifications.
	Category string

	// Text is the rendered message text.
	Text string

	// Timestamp is the local receive time.
	Timestamp time.Time
}

// eventBuffer is a fixed-capacity ring of console events. When full, the
// oldest entry is evicted first. It is not goroutine-safe; the owning client
// serializes access.
type eventBuffer struct {
	buf  []ConsoleEvent
	len  int
	head int
	tail int // write pointer
}

func newEventBuffer(capacity int) *eventBuffer {
	return &eventBuffer{
		buf: make([]ConsoleEvent, capacity),
	}
}

func (b *eventBuffer) Append(ev ConsoleEvent) {
	if b.len == len(b.buf) {
		// Full: drop the oldest entry.
		b.head = b.next(b.head)
		b.len--
	}
	b.buf[b.tail] = ev
	b.tail = b.next(b.tail)
	b.len++
}

func (b *eventBuffer) Len() int {
	return b.len
}

// Snapshot returns the buffered events oldest first.
func (b *eventBuffer) Snapshot() []ConsoleEvent {
	out := make([]ConsoleEvent, 0, b.len)
	for i, idx := 0, b.head; i < b.len; i, idx = i+1, b.next(idx) {
		out = append(out, b.buf[idx])
	}
	return out
}

func (b *eventBuffer) Clear() {
	b.head = 0
	b.tail = 0
	b.len = 0
}

func (b *eventBuffer) next(i int) int {
	return (i + 1) % len(b.buf)
}

// consoleAPIParams is the payload of Runtime.consoleAPICalled.
type consoleAPIParams struct {
	Type string `json:"type"`
	Args []struct {
		Value       json.RawMessage `json:"value,omitempty"`
		Description string          `json:"description,omitempty"`
	} `json:"args"`
}

// consoleMessageParams is the payload of Console.messageAdded.
type consoleMessageParams struct {
	Message struct {
		Level string `json:"level"`
		Text  string `json:"text"`
	} `json:"message"`
}

// eventFromFrame renders a notification frame into a ConsoleEvent.
func eventFromFrame(f *frame, now time.Time) ConsoleEvent {
	ev := ConsoleEvent{
		Category:  "event",
		Text:      f.Method,
		Timestamp: now,
	}

	switch f.Method {
	case methodConsoleAPICalled:
		var p consoleAPIParams
		if err := json.Unmarshal(f.Params, &p); err == nil {
			if p.Type != "" {
				ev.Category = p.Type
			}
			ev.Text = renderConsoleArgs(p)
		}

	case methodConsoleMessage:
		var p consoleMessageParams
		if err := json.Unmarshal(f.Params, &p); err == nil {
			if p.Message.Level != "" {
				ev.Category = p.Message.Level
			}
			ev.Text = p.Message.Text
		}

	case methodExceptionThrown:
		ev.Category = "error"
		ev.Text = string(f.Params)
	}

	return ev
}

func renderConsoleArgs(p consoleAPIParams) string {
	text := ""
	for i, arg := range p.Args {
		if i > 0 {
			text += " "
		}
		switch {
		case arg.Description != "":
			text += arg.Description
		case len(arg.Value) > 0:
			var s string
			if err := json.Unmarshal(arg.Value, &s); err == nil {
				text += s
			} else {
				text += string(arg.Value)
			}
		}
	}
	return text
}
