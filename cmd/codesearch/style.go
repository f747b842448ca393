package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	codeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func field(label string, value any) string {
	return fmt.Sprintf("%s %v", labelStyle.Render(label+":"), value)
}

func location(path string, start, end *int) string {
	if start == nil || end == nil {
		return path
	}
	return fmt.Sprintf("%s:%d-%d", path, *start, *end)
}

func renderRepository(r *codesearch.Repository, withFiles bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render(fmt.Sprintf("[%d] %s", r.ID, r.Name)), dimStyle.Render(r.Path))
	fmt.Fprintln(&b, field("Description", r.Description))
	fmt.Fprintln(&b, field("Files", r.FileCount))
	fmt.Fprintln(&b, field("Indexed", r.Indexed))
	if r.Branch != "" {
		fmt.Fprintln(&b, field("Branch", r.Branch+" "+shortCommit(r.Commit)))
	}
	if withFiles {
		for _, f := range r.Files {
			fmt.Fprintln(&b, "  "+f)
		}
	}
	return b.String()
}

func renderResult(r codesearch.SearchResult) string {
	head := fmt.Sprintf("[%d] %s", r.ID, location(r.FilePath, r.StartLine, r.EndLine))
	if r.Name != nil {
		head += " " + *r.Name
	}
	return fmt.Sprintf("%s %s\n%s\n", titleStyle.Render(head),
		dimStyle.Render(fmt.Sprintf("(distance %.4f)", r.Distance)),
		codeStyle.Render(r.CodePreview))
}

func renderSnippet(sn *codesearch.Snippet) string {
	head := fmt.Sprintf("[%d] %s", sn.ID, location(sn.FilePath, sn.StartLine, sn.EndLine))
	return fmt.Sprintf("%s %s\n%s\n", titleStyle.Render(head),
		dimStyle.Render(fmt.Sprintf("(%s, %s)", sn.RepositoryName, sn.Language)),
		codeStyle.Render(sn.Code))
}

func shortCommit(c string) string {
	if len(c) > 8 {
		return c[:8]
	}
	return c
}
