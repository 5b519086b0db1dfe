package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/compozy/vachanamrut/engine/knowledge"
	"github.com/compozy/vachanamrut/engine/pipeline"
)

var (
	thoughtStyle  = lipgloss.NewStyle().Faint(true).Italic(true)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	excerptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	answerDivider = lipgloss.NewStyle().Faint(true).Render(strings.Repeat("─", 40))
)

// eventPrinter renders pipeline events for a terminal or as JSON lines.
type eventPrinter struct {
	w        io.Writer
	enc      *json.Encoder
	inAnswer bool
	failed   bool
}

func newEventPrinter(w io.Writer, asJSON bool) *eventPrinter {
	p := &eventPrinter{w: w}
	if asJSON {
		p.enc = json.NewEncoder(w)
		p.enc.SetEscapeHTML(false)
	}
	return p
}

func (p *eventPrinter) Print(ev pipeline.Event) error {
	if ev.Type == pipeline.EventError {
		p.failed = true
	}
	if p.enc != nil {
		return p.enc.Encode(ev)
	}
	switch ev.Type {
	case pipeline.EventThought:
		return p.line(thoughtStyle.Render(ev.Text()))
	case pipeline.EventCitation:
		return p.citations(ev.Citations())
	case pipeline.EventToken:
		if !p.inAnswer {
			p.inAnswer = true
			if err := p.line(answerDivider); err != nil {
				return err
			}
		}
		_, err := io.WriteString(p.w, ev.Text())
		return err
	case pipeline.EventError:
		if err := p.endAnswer(); err != nil {
			return err
		}
		return p.line(errorStyle.Render("Error: " + ev.Text()))
	default:
		return nil
	}
}

// Finish terminates a partially written answer line.
func (p *eventPrinter) Finish() error {
	return p.endAnswer()
}

// Failed reports whether an error event was printed.
func (p *eventPrinter) Failed() bool {
	return p.failed
}

func (p *eventPrinter) citations(items []pipeline.Citation) error {
	if len(items) == 0 {
		return nil
	}
	if err := p.line(headerStyle.Render("Sources")); err != nil {
		return err
	}
	for i, c := range items {
		label := sourceStyle.Render(fmt.Sprintf("[%d] %s", i+1, citationLabel(c.Metadata)))
		if err := p.line(label); err != nil {
			return err
		}
		if err := p.line("    " + excerptStyle.Render(c.Text)); err != nil {
			return err
		}
	}
	return nil
}

func (p *eventPrinter) endAnswer() error {
	if !p.inAnswer {
		return nil
	}
	p.inAnswer = false
	_, err := io.WriteString(p.w, "\n")
	return err
}

func (p *eventPrinter) line(s string) error {
	_, err := fmt.Fprintln(p.w, s)
	return err
}

func citationLabel(meta map[string]any) string {
	var parts []string
	for _, field := range []string{knowledge.FieldChapter, knowledge.FieldSection, knowledge.FieldDiscourseNumber} {
		if v, ok := meta[field]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		return "Vachanamrut"
	}
	return strings.Join(parts, " ")
}
