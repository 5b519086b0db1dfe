package pipeline

import (
	"encoding/json"
	"unicode/utf8"
)

// EventType tags a pipeline event.
type EventType string

const (
	EventThought  EventType = "thought"
	EventCitation EventType = "citation"
	EventToken    EventType = "token"
	EventError    EventType = "error"
)

// User-facing texts emitted by a run.
const (
	ThoughtAnalyzing   = "🧠 Analyzing your question..."
	ThoughtTranslating = "🌐 Translating for Search..."
	ThoughtSearching   = "✏️ Searching Scripture..."
	ThoughtRanking     = "📊 Ranking Results..."
	ThoughtGenerating  = "💡 Generating Answer..."
	MessageUnavailable = "Database not ready."
	MessageNoResults   = "I could not find relevant Vachanamruts."
	MessageTimedOut    = "The answer took too long. Please try again."
)

const (
	thoughtLanguage = "🌍 Detected Language: "
	thoughtRouting  = "🧠 Understanding Context: "
	excerptRunes    = 100
	excerptEllipsis = "..."
)

// Citation is a source shown before the answer.
type Citation struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Event is one item of a run's output stream. Data is a string for every
// type except citation, where it is []Citation.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

func Thought(text string) Event {
	return Event{Type: EventThought, Data: text}
}

func Token(text string) Event {
	return Event{Type: EventToken, Data: text}
}

func Error(text string) Event {
	return Event{Type: EventError, Data: text}
}

func Citations(items []Citation) Event {
	if items == nil {
		items = []Citation{}
	}
	return Event{Type: EventCitation, Data: items}
}

// Text returns the payload of a text event and "" for citations.
func (e Event) Text() string {
	s, _ := e.Data.(string)
	return s
}

// Citations returns the payload of a citation event.
func (e Event) Citations() []Citation {
	items, _ := e.Data.([]Citation)
	return items
}

// MarshalJSON keeps the {type, data} shape even for a zero event.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type EventType `json:"type"`
		Data any       `json:"data"`
	}
	data := e.Data
	if data == nil {
		data = ""
	}
	return json.Marshal(wire{Type: e.Type, Data: data})
}

// Excerpt returns the first 100 characters of text followed by "...".
func Excerpt(text string) string {
	if utf8.RuneCountInString(text) <= excerptRunes {
		return text + excerptEllipsis
	}
	runes := []rune(text)
	return string(runes[:excerptRunes]) + excerptEllipsis
}
