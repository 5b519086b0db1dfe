package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Template names.
const (
	DetectLanguage = "detect_language.tmpl"
	Route          = "route.tmpl"
	Translate      = "translate.tmpl"
	Rewrite        = "rewrite.tmpl"
	Rerank         = "rerank.tmpl"
	Answer         = "answer.tmpl"
)

// Chapters lists the valid chapter names of the corpus.
var Chapters = []string{
	"Gadhada", "Sarangpur", "Kariyani", "Loya", "Panchala", "Vartal", "Amdavad", "Jetalpur", "Ashlali",
}

// Sections lists the valid section names of the corpus.
var Sections = []string{"I", "II", "III", "Middle", "Last"}

var templates = template.Must(
	template.New("prompts").Funcs(sprig.TxtFuncMap()).ParseFS(templateFS, "templates/*.tmpl"),
)

// Render executes a named template.
func Render(name string, data any) (string, error) {
	tpl := templates.Lookup(name)
	if tpl == nil {
		return "", fmt.Errorf("prompt template %q not found", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

type queryData struct {
	Query string
}

type routeData struct {
	Query    string
	History  string
	Chapters []string
	Sections []string
}

type rewriteData struct {
	Query   string
	Routing string
}

type rerankData struct {
	Query    string
	Passages []string
}

type answerData struct {
	Context  string
	Query    string
	Language string
}

func RenderDetectLanguage(query string) (string, error) {
	return Render(DetectLanguage, queryData{Query: query})
}

func RenderRoute(query, history string) (string, error) {
	return Render(Route, routeData{Query: query, History: history, Chapters: Chapters, Sections: Sections})
}

func RenderTranslate(query string) (string, error) {
	return Render(Translate, queryData{Query: query})
}

// RenderRewrite takes the routing metadata already formatted for display.
func RenderRewrite(query, routing string) (string, error) {
	return Render(Rewrite, rewriteData{Query: query, Routing: routing})
}

func RenderRerank(query string, passages []string) (string, error) {
	return Render(Rerank, rerankData{Query: query, Passages: passages})
}

func RenderAnswer(context, query, language string) (string, error) {
	return Render(Answer, answerData{Context: context, Query: query, Language: language})
}
