package pipeline

import (
	"strings"

	"github.com/compozy/vachanamrut/engine/knowledge"
	"github.com/compozy/vachanamrut/engine/pipeline/stage"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one earlier message of the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Query is the input of one run. Filter, when set, replaces whatever filter
// routing would infer.
type Query struct {
	Question string
	History  []Turn
	Filter   *knowledge.Filter
}

// HistoryWindow is the number of trailing turns given to routing.
const HistoryWindow = 4

// FormatHistory renders the last HistoryWindow turns, oldest first, as
// "role: content" lines.
func FormatHistory(turns []Turn) string {
	if len(turns) > HistoryWindow {
		turns = turns[len(turns)-HistoryWindow:]
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, string(t.Role)+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

// Unset sentinel accepted for chapter and section.
const allSentinel = "All"

// ManualFilter builds a caller filter. "All" or blank strings and
// non-positive numbers leave a field unset; nil when every field is unset.
func ManualFilter(chapter, section string, number int) *knowledge.Filter {
	var clauses []knowledge.Clause
	if v := strings.TrimSpace(chapter); v != "" && v != allSentinel {
		clauses = append(clauses, knowledge.Clause{Field: knowledge.FieldChapter, Value: v})
	}
	if v := strings.TrimSpace(section); v != "" && v != allSentinel {
		clauses = append(clauses, knowledge.Clause{Field: knowledge.FieldSection, Value: v})
	}
	if number > 0 {
		clauses = append(clauses, knowledge.Clause{Field: knowledge.FieldDiscourseNumber, Value: number})
	}
	return knowledge.NewFilter(clauses...)
}

// DeriveFilter returns manual when set, otherwise the filter implied by
// routing: nil, one clause, or a conjunction of every routed field.
func DeriveFilter(manual *knowledge.Filter, routing stage.RoutingMetadata) *knowledge.Filter {
	if manual != nil {
		return manual
	}
	return knowledge.NewFilter(routing.Clauses()...)
}
