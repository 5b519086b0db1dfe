package stage

import (
	"encoding/json"
	"strings"

	"github.com/compozy/vachanamrut/engine/knowledge"
)

// Language is a detected query language.
type Language string

const (
	LanguageEnglish  Language = "en"
	LanguageHindi    Language = "hi"
	LanguageGujarati Language = "gu"
)

// ParseLanguage maps a code or an English language name onto a supported
// language. Anything else is reported as not ok.
func ParseLanguage(raw string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "en", "english":
		return LanguageEnglish, true
	case "hi", "hindi":
		return LanguageHindi, true
	case "gu", "gujarati":
		return LanguageGujarati, true
	default:
		return LanguageEnglish, false
	}
}

// RoutingMetadata points at one discourse of the corpus. All fields nil means
// no discourse was referenced. Values are never mutated after construction.
type RoutingMetadata struct {
	Chapter         *string `json:"chapter,omitempty"`
	Section         *string `json:"section,omitempty"`
	DiscourseNumber *int    `json:"vachanamrut_no,omitempty"`
}

// IsEmpty reports whether no field is set.
func (m RoutingMetadata) IsEmpty() bool {
	return m.Chapter == nil && m.Section == nil && m.DiscourseNumber == nil
}

// Clauses returns one equality clause per set field, in chapter, section,
// number order.
func (m RoutingMetadata) Clauses() []knowledge.Clause {
	var clauses []knowledge.Clause
	if m.Chapter != nil {
		clauses = append(clauses, knowledge.Clause{Field: knowledge.FieldChapter, Value: *m.Chapter})
	}
	if m.Section != nil {
		clauses = append(clauses, knowledge.Clause{Field: knowledge.FieldSection, Value: *m.Section})
	}
	if m.DiscourseNumber != nil {
		clauses = append(clauses, knowledge.Clause{Field: knowledge.FieldDiscourseNumber, Value: *m.DiscourseNumber})
	}
	return clauses
}

// String renders the metadata as compact JSON; "{}" when empty.
func (m RoutingMetadata) String() string {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// RankingOrder lists passage indices, most relevant first. It is not
// validated against the passage list.
type RankingOrder []int
