package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

const describePrompt = `You are looking at a source code repository named %q.
Here are some of its file paths:

%s

In two or three sentences, describe what this repository most likely does.
Reply with the description only.`

const explainPrompt = `Explain what the following %s code does.
Cover its purpose, inputs, outputs and any notable side effects in a few short paragraphs.
Source file: %s

%s`

// Describe summarizes a repository from its name and a sample of file paths.
// It satisfies repository.Describer.
func (c *Client) Describe(ctx context.Context, name string, files []string) (string, error) {
	listing := c.scrub(strings.Join(files, "\n"))
	return c.Complete(ctx, fmt.Sprintf(describePrompt, name, listing))
}

// Explain returns a natural-language explanation of snippet. Credentials in
// the code are redacted before the request is sent.
func (c *Client) Explain(ctx context.Context, snippet *codesearch.Snippet) (string, error) {
	lang := snippet.Language
	if lang == "" || lang == "text" {
		lang = "source"
	}
	header := snippet.FilePath
	if snippet.Name != nil {
		header += " (" + *snippet.Name + ")"
	}
	fence := "```"
	code := fence + "\n" + c.scrub(snippet.Code) + "\n" + fence
	return c.Complete(ctx, fmt.Sprintf(explainPrompt, lang, header, code))
}
