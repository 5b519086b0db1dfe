package stage

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compozy/vachanamrut/engine/pipeline/prompt"
)

// extractJSON returns the outermost JSON object in s. Models sometimes wrap
// objects in code fences or prose.
func extractJSON(s string) (gjson.Result, bool) {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return gjson.Result{}, false
	}
	body := s[start : end+1]
	if !gjson.Valid(body) {
		return gjson.Result{}, false
	}
	return gjson.Parse(body), true
}

func parseLanguage(out string) (Language, bool) {
	obj, ok := extractJSON(out)
	if !ok {
		return LanguageEnglish, false
	}
	return ParseLanguage(obj.Get("language").String())
}

// parseRouting reads chapter, section and vachanamrut_no. Names are matched
// case-insensitively against the corpus lists; unknown names and
// non-positive numbers are dropped.
func parseRouting(out string) (RoutingMetadata, bool) {
	obj, ok := extractJSON(out)
	if !ok {
		return RoutingMetadata{}, false
	}
	var meta RoutingMetadata
	if chapter, ok := canonical(obj.Get("chapter").String(), prompt.Chapters); ok {
		meta.Chapter = &chapter
	}
	if section, ok := canonical(obj.Get("section").String(), prompt.Sections); ok {
		meta.Section = &section
	}
	if n, ok := positiveInt(obj.Get("vachanamrut_no")); ok {
		meta.DiscourseNumber = &n
	}
	return meta, true
}

func canonical(raw string, valid []string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, v := range valid {
		if strings.EqualFold(v, raw) {
			return v, true
		}
	}
	return "", false
}

func positiveInt(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num != math.Trunc(v.Num) || v.Num <= 0 || v.Num > math.MaxInt32 {
			return 0, false
		}
		return int(v.Num), true
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// parseRanking reads ranked_indices, skipping entries that are not integers.
func parseRanking(out string) (RankingOrder, bool) {
	obj, ok := extractJSON(out)
	if !ok {
		return nil, false
	}
	arr := obj.Get("ranked_indices")
	if !arr.IsArray() {
		return nil, false
	}
	var order RankingOrder
	for _, item := range arr.Array() {
		if item.Type != gjson.Number || item.Num != math.Trunc(item.Num) {
			continue
		}
		order = append(order, int(item.Num))
	}
	return order, true
}
