package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesRetryableFromKind(t *testing.T) {
	// Given: one error per kind
	cases := []struct {
		kind      Kind
		retryable bool
	}{
		{KindBadInput, false},
		{KindAccessDenied, false},
		{KindNotFound, false},
		{KindConflict, false},
		{KindUnavailable, true},
		{KindDimensionMismatch, false},
		{KindTimeout, true},
		{KindCancelled, false},
		{KindInternal, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			err := New(tc.kind, "boom")
			assert.Equal(t, tc.kind, err.Kind)
			assert.Equal(t, tc.retryable, err.Retryable)
		})
	}
}

func TestError_MessageFormat(t *testing.T) {
	err := BadInput("query must not be empty")
	assert.Equal(t, "[bad_input] query must not be empty", err.Error())

	wrapped := Wrap(KindUnavailable, stderrors.New("connection refused"), "embedder call failed")
	assert.Equal(t, "[dependency_unavailable] embedder call failed: connection refused", wrapped.Error())
}

func TestWrap_NilCauseReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindInternal, nil, "ignored"))
}

func TestError_UnwrapAndIs(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Internal(cause, "persist failed")

	// Unwrap reaches the cause
	assert.True(t, stderrors.Is(err, cause))

	// Is matches by kind across wrapping
	outer := fmt.Errorf("ingest: %w", err)
	assert.True(t, stderrors.Is(outer, &Error{Kind: KindInternal}))
	assert.False(t, stderrors.Is(outer, &Error{Kind: KindNotFound}))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("document %s", "d1")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("outer: %w", NotFound("x"))))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindInternal, KindOf(stderrors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestFromContext(t *testing.T) {
	require.NoError(t, FromContext(nil))

	err := FromContext(context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, KindOf(err))

	err = FromContext(context.Canceled)
	assert.Equal(t, KindCancelled, KindOf(err))

	plain := stderrors.New("unrelated")
	assert.Equal(t, plain, FromContext(plain))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(BadInput("nope")))
	assert.True(t, IsRetryable(Unavailable(nil, "store down")))
	// Unclassified transport errors keep their retry behavior.
	assert.True(t, IsRetryable(stderrors.New("connection reset")))
	assert.False(t, IsRetryable(context.Canceled))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := DimensionMismatch(768, 1024)

	require.NotNil(t, err.Details)
	assert.Equal(t, "768", err.Details["expected"])
	assert.Equal(t, "1024", err.Details["got"])
	assert.NotEmpty(t, err.Suggestion)
	assert.Equal(t, KindDimensionMismatch, err.Kind)

	err = err.WithDetail("document_id", "d42")
	assert.Equal(t, "d42", err.Details["document_id"])
}

func TestHasKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict("key already ingested"))
	assert.True(t, HasKind(err, KindConflict))
	assert.False(t, HasKind(err, KindBadInput))
	assert.False(t, HasKind(stderrors.New("plain"), KindConflict))
}
