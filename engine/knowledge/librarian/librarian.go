package librarian

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compozy/vachanamrut/pkg/logger"
)

// ErrNotFound is returned when no discourse matches a lookup.
var ErrNotFound = errors.New("vachanamrut not found")

// Discourse is one full discourse of the corpus.
type Discourse struct {
	Chapter string `json:"chapter"`
	Section string `json:"section,omitempty"`
	Number  int    `json:"vachanamrut_no"`
	Title   string `json:"title,omitempty"`
	Text    string `json:"text"`
}

type key struct {
	chapter string
	section string
	number  int
}

// Librarian serves full discourse texts from the cleaned corpus file.
type Librarian struct {
	byKey   map[key]*Discourse
	ordered []*Discourse
}

// Load reads a corpus file holding a JSON array of discourses.
func Load(ctx context.Context, path string) (*Librarian, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("librarian: read corpus: %w", err)
	}
	lib, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Corpus loaded", "path", path, "discourses", lib.Len())
	return lib, nil
}

// Parse builds a librarian from corpus JSON. Records without a chapter or a
// positive number are skipped.
func Parse(data []byte) (*Librarian, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("librarian: corpus is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		root = root.Get("vachanamruts")
	}
	if !root.IsArray() {
		return nil, errors.New("librarian: corpus must be a JSON array")
	}
	lib := &Librarian{byKey: make(map[key]*Discourse)}
	root.ForEach(func(_, rec gjson.Result) bool {
		d := parseRecord(rec)
		if d == nil {
			return true
		}
		k := key{chapter: normalize(d.Chapter), section: normalize(d.Section), number: d.Number}
		if _, exists := lib.byKey[k]; !exists {
			lib.byKey[k] = d
			lib.ordered = append(lib.ordered, d)
		}
		return true
	})
	return lib, nil
}

func parseRecord(rec gjson.Result) *Discourse {
	chapter := strings.TrimSpace(firstString(rec, "chapter", "metadata.chapter"))
	number := firstInt(rec, "vachanamrut_no", "number", "metadata.vachanamrut_no")
	if chapter == "" || number <= 0 {
		return nil
	}
	return &Discourse{
		Chapter: chapter,
		Section: strings.TrimSpace(firstString(rec, "section", "metadata.section")),
		Number:  number,
		Title:   strings.TrimSpace(firstString(rec, "title", "metadata.title")),
		Text:    firstString(rec, "text", "content", "full_text"),
	}
}

func firstString(rec gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := rec.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstInt(rec gjson.Result, paths ...string) int {
	for _, p := range paths {
		v := rec.Get(p)
		switch v.Type {
		case gjson.Number:
			return int(v.Int())
		case gjson.String:
			if n, err := strconv.Atoi(strings.TrimSpace(v.Str)); err == nil {
				return n
			}
		}
	}
	return 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Len returns the number of discourses.
func (l *Librarian) Len() int {
	if l == nil {
		return 0
	}
	return len(l.ordered)
}

// Lookup finds a discourse. An empty section matches the first discourse of
// the chapter with that number.
func (l *Librarian) Lookup(chapter, section string, number int) (*Discourse, error) {
	if l == nil || number <= 0 || strings.TrimSpace(chapter) == "" {
		return nil, ErrNotFound
	}
	ch, sec := normalize(chapter), normalize(section)
	if d, ok := l.byKey[key{chapter: ch, section: sec, number: number}]; ok {
		return d, nil
	}
	if sec != "" {
		return nil, ErrNotFound
	}
	for _, d := range l.ordered {
		if normalize(d.Chapter) == ch && d.Number == number {
			return d, nil
		}
	}
	return nil, ErrNotFound
}
