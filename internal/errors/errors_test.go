package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndRecoverable(t *testing.T) {
	tests := []struct {
		code        string
		category    Category
		recoverable bool
	}{
		{CodeInvalidInput, CategoryInput, false},
		{CodeProjectExists, CategoryWorkspace, false},
		{CodeFetchTimeout, CategoryFetch, true},
		{CodeDomainBlocked, CategoryFetch, false},
		{CodeBuildTimeout, CategoryBuild, true},
		{CodeDimensionMismatch, CategoryBuild, false},
		{CodeCheckpointWriteFailed, CategoryStorage, false},
		{CodeAlreadyRunning, CategoryServer, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom")
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.recoverable, err.Recoverable)
		})
	}
}

func TestError_Format(t *testing.T) {
	err := New(CodeFetchFailed, "HTTP 404")
	assert.Equal(t, "[FetchFailed] HTTP 404", err.Error())
}

func TestError_FormatRendersCause(t *testing.T) {
	err := Wrapf(CodeParseError, fmt.Errorf("encrypted"), "decoding doc.pdf")
	assert.Equal(t, "[ParseError] decoding doc.pdf: encrypted", err.Error())

	// Wrap copies the cause text into the message; no duplication.
	wrapped := Wrap(CodeFetchFailed, fmt.Errorf("connection refused"))
	assert.Equal(t, "[FetchFailed] connection refused", wrapped.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(CodeFetchFailed, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, stderrors.Is(err, cause))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(CodeFetchFailed, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := New(CodeProjectNotFound, "no such project")
	assert.True(t, stderrors.Is(err, New(CodeProjectNotFound, "other message")))
	assert.False(t, stderrors.Is(err, New(CodeProjectExists, "no such project")))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(CodeBuildFailed, "locked").
		WithDetail("reason", "locked").
		WithSuggestion("wait for the running build to finish")

	assert.Equal(t, "locked", err.Details["reason"])
	assert.Equal(t, "wait for the running build to finish", err.Suggestion)
}

func TestWithRecoverable_Overrides(t *testing.T) {
	// 503 is recoverable, 404 is not.
	err := New(CodeFetchFailed, "HTTP 503").WithRecoverable(true)
	assert.True(t, IsRecoverable(err))

	err = New(CodeFetchFailed, "HTTP 404")
	assert.False(t, IsRecoverable(err))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(CodeDimensionMismatch, "1536 vs 3072")))
	assert.True(t, IsFatal(New(CodeMissingApiKey, "OPENAI_API_KEY not set")))
	assert.True(t, IsFatal(New(CodeCheckpointWriteFailed, "disk full")))
	assert.False(t, IsFatal(New(CodeFetchFailed, "HTTP 500")))
	assert.False(t, IsFatal(stderrors.New("plain error")))
}

func TestGetCode_WrappedChain(t *testing.T) {
	inner := New(CodeFetchTimeout, "deadline exceeded")
	outer := fmt.Errorf("fetching source: %w", inner)
	assert.Equal(t, CodeFetchTimeout, GetCode(outer))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}
