package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncError_Error(t *testing.T) {
	e := New(TableNotFound, "table \"documents\" not found")
	assert.Contains(t, e.Error(), string(TableNotFound))
	assert.Contains(t, e.Error(), "documents")
}

func TestSyncError_Wrap_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := Wrap(BackendUnavailable, "chroma is unavailable", cause)
	assert.Same(t, cause, errors.Unwrap(e))
}

func TestSyncError_Retryable(t *testing.T) {
	assert.True(t, New(BackendUnavailable, "x").Retryable())
	assert.True(t, New(Timeout, "x").Retryable())
	assert.False(t, New(MergeConflict, "x").Retryable())
	assert.False(t, New(ValidationWarning, "x").Retryable())
}

func TestNewCheckoutBlocked(t *testing.T) {
	e := NewCheckoutBlocked("main", 3)
	assert.Equal(t, CheckoutBlockedByLocalChanges, e.Code)
	assert.Equal(t, 3, e.Details["local_change_count"])
}

func TestNewReassemblyError(t *testing.T) {
	e := NewReassemblyError("doc-1", "missing chunk_index 2")
	assert.Equal(t, ReassemblyError, e.Code)
	assert.Equal(t, "doc-1", e.Details["doc_id"])
}

func TestNewNoCollection(t *testing.T) {
	e := NewNoCollection("no collection specified and 2 exist")
	assert.Equal(t, NoCollection, e.Code)
}
