package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashContent_Deterministic(t *testing.T) {
	h1 := HashContent("hello world")
	h2 := HashContent("hello world")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, HashContent("hello world!"))
	assert.Len(t, h1, 64) // lowercase hex SHA-256
}

func TestNewDocument_HashDiscipline(t *testing.T) {
	d := NewDocument("d1", "col1", "hello world")
	require.NoError(t, d.Validate())
	assert.Equal(t, HashContent("hello world"), d.ContentHash)
}

func TestDocument_Validate_HashMismatch(t *testing.T) {
	d := &Document{
		DocID:          "d1",
		CollectionName: "col1",
		Content:        "hello world",
		ContentHash:    "not-the-real-hash",
	}
	assert.Error(t, d.Validate())
}

func TestDocument_Validate_RequiredFields(t *testing.T) {
	d := NewDocument("", "col1", "x")
	assert.Error(t, d.Validate())

	d2 := NewDocument("d1", "", "x")
	assert.Error(t, d2.Validate())
}
