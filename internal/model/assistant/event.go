package assistant

import "encoding/base64"

// EventType discriminates outbound frames on the assistant socket.
type EventType string

const (
	EventText      EventType = "text"
	EventUser      EventType = "user"
	EventAssistant EventType = "assistant"
	EventError     EventType = "error"
)

// Event is one JSON frame sent back to the client.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Text    string    `json:"text,omitempty"`
	Audio   string    `json:"audio,omitempty"`
	Format  string    `json:"format,omitempty"`
	Message string    `json:"message,omitempty"`
}

// TranscriptEvent carries the recognized transcript only.
func TranscriptEvent(text string) Event {
	return Event{Type: EventText, Content: text}
}

// UserEvent echoes the query the turn will answer.
func UserEvent(query string) Event {
	return Event{Type: EventUser, Content: query}
}

// AssistantEvent carries the answer and, when synthesis succeeded, its audio.
func AssistantEvent(answer string, audio []byte, format string) Event {
	ev := Event{Type: EventAssistant, Text: answer}
	if len(audio) > 0 {
		ev.Audio = base64.StdEncoding.EncodeToString(audio)
		ev.Format = format
	}
	return ev
}

// ErrorEvent reports a per-turn failure.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
