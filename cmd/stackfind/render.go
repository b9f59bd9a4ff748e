package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pbaille/stackfind/internal/domain"
	"github.com/pbaille/stackfind/internal/markup"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	linkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	bodyStyle     = lipgloss.NewStyle().PaddingLeft(4)
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

// renderQuestions prints each question with its best answer, or every answer when all is set
func renderQuestions(w io.Writer, query string, qs []domain.Question, all bool) {
	if len(qs) == 0 {
		fmt.Fprintf(w, "No answered questions found for %q.\n", query)
		return
	}

	for i, q := range qs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", scoreStyle.Render(fmt.Sprintf("[%d]", q.Score)), titleStyle.Render(markup.ToText(q.Title)))
		fmt.Fprintf(w, "  %s\n", linkStyle.Render(q.Link))

		answers := q.Answers
		if !all {
			answers = bestAnswer(q)
		}
		if len(answers) == 0 {
			fmt.Fprintf(w, "  %s\n", dimStyle.Render("(no answers returned)"))
			continue
		}

		for _, a := range answers {
			label := fmt.Sprintf("answer %d, score %d", a.ID, a.Score)
			if a.Accepted {
				label = acceptedStyle.Render("✔ accepted") + " " + label
			}
			fmt.Fprintf(w, "\n  %s\n", label)
			fmt.Fprintln(w, bodyStyle.Render(wrap(markup.ToText(a.Body), 96)))
		}
	}
}

// bestAnswer picks the accepted answer, or the first one the service returned
func bestAnswer(q domain.Question) []domain.Answer {
	if a, ok := q.AcceptedAnswer(); ok {
		return []domain.Answer{a}
	}
	if len(q.Answers) > 0 {
		return q.Answers[:1]
	}
	return nil
}

// wrap breaks prose lines longer than width; indented lines are left alone
func wrap(s string, width int) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(line) <= width || strings.HasPrefix(line, " ") {
			out = append(out, line)
			continue
		}
		var cur strings.Builder
		for _, word := range strings.Fields(line) {
			if cur.Len() > 0 && cur.Len()+1+len(word) > width {
				out = append(out, cur.String())
				cur.Reset()
			}
			if cur.Len() > 0 {
				cur.WriteString(" ")
			}
			cur.WriteString(word)
		}
		out = append(out, cur.String())
	}
	return strings.Join(out, "\n")
}
