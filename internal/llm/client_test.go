package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
)

// recordingModel captures prompts and replies with a fixed answer.
type recordingModel struct {
	reply   string
	err     error
	block   bool
	prompts []string
}

func (m *recordingModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range msgs {
		for _, p := range msg.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				m.prompts = append(m.prompts, tc.Text)
			}
		}
	}
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func TestNew_NoKeyIsUnavailable(t *testing.T) {
	c, err := New(context.Background(), Config{Provider: ProviderGoogleAI}, nil)
	require.NoError(t, err)
	assert.False(t, c.Available())

	_, err = c.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "no API key")

	_, err = c.Explain(context.Background(), &codesearch.Snippet{Code: "x = 1"})
	assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "cohere", APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestNilClientIsUnavailable(t *testing.T) {
	var c *Client
	assert.False(t, c.Available())
	_, err := c.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
}

func TestComplete_FakeModel(t *testing.T) {
	c := NewWithModel(fake.NewFakeLLM([]string{"  a web crawler  "}), Config{Model: "fake"}, nil)
	require.True(t, c.Available())

	out, err := c.Complete(context.Background(), "describe")
	require.NoError(t, err)
	assert.Equal(t, "a web crawler", out)
}

func TestComplete_ErrorIsUnavailable(t *testing.T) {
	c := NewWithModel(&recordingModel{err: errors.New("quota exceeded")}, Config{}, nil)

	_, err := c.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestComplete_Timeout(t *testing.T) {
	c := NewWithModel(&recordingModel{block: true}, Config{Timeout: 20 * time.Millisecond}, nil)

	_, err := c.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "timed out")
}

func TestDescribe_Prompt(t *testing.T) {
	m := &recordingModel{reply: "A CLI tool."}
	c := NewWithModel(m, Config{}, nil)

	out, err := c.Describe(context.Background(), "toolbox", []string{"main.go", "cmd/run.go"})
	require.NoError(t, err)
	assert.Equal(t, "A CLI tool.", out)

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], `"toolbox"`)
	assert.Contains(t, m.prompts[0], "main.go\ncmd/run.go")
}

func TestExplain_ScrubsSecrets(t *testing.T) {
	m := &recordingModel{reply: "Connects to the database."}
	c := NewWithModel(m, Config{}, nil)
	c.scrubber = secrets.New(secrets.WithDetector(func(content string) ([]secrets.Finding, error) {
		if strings.Contains(content, "tok_live_123") {
			return []secrets.Finding{{RuleID: "test-token", Secret: "tok_live_123"}}, nil
		}
		return nil, nil
	}))

	sn := &codesearch.Snippet{
		FilePath: "db.py",
		Name:     codesearch.Ptr("connect"),
		Language: "python",
		Code:     "def connect():\n    return client('tok_live_123')",
	}
	out, err := c.Explain(context.Background(), sn)
	require.NoError(t, err)
	assert.Equal(t, "Connects to the database.", out)

	require.Len(t, m.prompts, 1)
	prompt := m.prompts[0]
	assert.NotContains(t, prompt, "tok_live_123")
	assert.Contains(t, prompt, "[REDACTED:test-token]")
	assert.Contains(t, prompt, "python code")
	assert.Contains(t, prompt, "db.py (connect)")
}

func TestExplain_UnknownLanguage(t *testing.T) {
	m := &recordingModel{reply: "ok"}
	c := NewWithModel(m, Config{}, nil)

	_, err := c.Explain(context.Background(), &codesearch.Snippet{FilePath: "notes.txt", Language: "text", Code: "hello"})
	require.NoError(t, err)
	assert.Contains(t, m.prompts[0], "following source code")
}
