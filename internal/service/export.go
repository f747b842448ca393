package service

import (
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

// ExportSearchMarkdown renders search results as a Markdown document.
func ExportSearchMarkdown(results []codesearch.SearchResult) string {
	var b strings.Builder
	b.WriteString("# Search Results Export\n\n")
	for i, r := range results {
		b.WriteString("## Result " + strconv.Itoa(i+1) + "\n")
		b.WriteString("Snippet ID: " + strconv.FormatInt(r.ID, 10) + "\n")
		b.WriteString("File Path: " + r.FilePath + "\n")
		b.WriteString("Similarity Score: " + strconv.FormatFloat(r.Distance, 'f', -1, 64) + "\n\n")
		b.WriteString("```text\n")
		b.WriteString(r.CodePreview)
		b.WriteString("\n```\n\n")
	}
	return b.String()
}

// ExportSnippetMarkdown renders one snippet as a Markdown document.
func ExportSnippetMarkdown(sn *codesearch.Snippet) string {
	var b strings.Builder
	b.WriteString("# Code Snippet Export\n\n")
	b.WriteString("Snippet ID: " + strconv.FormatInt(sn.ID, 10) + "\n")
	b.WriteString("Repository: " + sn.RepositoryName + "\n")
	b.WriteString("File Path: " + sn.FilePath + "\n\n")
	b.WriteString("```text\n")
	b.WriteString(sn.Code)
	b.WriteString("\n```\n")
	return b.String()
}
