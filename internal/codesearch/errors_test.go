package codesearch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: /nope", ErrInvalidPath), CodeInvalidPath},
		{fmt.Errorf("%w: repo 3", ErrEmptyCorpus), CodeEmptyCorpus},
		{ErrIndexNotFound, CodeIndexNotFound},
		{fmt.Errorf("search: %w", fmt.Errorf("%w: too short", ErrInvalidQuery)), CodeInvalidQuery},
		{fmt.Errorf("%w: snippet 9", ErrNotFound), CodeNotFound},
		{fmt.Errorf("%w: timeout", ErrCollaboratorUnavailable), CodeCollaboratorUnavailable},
		{errors.New("disk on fire"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), "err=%v", tt.err)
	}
}

func TestNewSnippet(t *testing.T) {
	u := CodeUnit{Name: Ptr("handler"), Code: "def handler(): pass", StartLine: Ptr(3), EndLine: Ptr(3)}

	s := NewSnippet(7, "app/views.py", "python", u)

	assert.Equal(t, int64(7), s.RepositoryID)
	assert.Equal(t, "app/views.py", s.FilePath)
	assert.Equal(t, "handler", *s.Name)
	assert.Equal(t, 3, *s.StartLine)
	assert.Equal(t, "python", s.Language)
	assert.Zero(t, s.ID)
}
