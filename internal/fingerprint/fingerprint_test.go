package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	got := Normalize("  What is HTMX? \r\n", "A library for AJAX.", "Web Development")
	assert.Equal(t, "what is htmx?\na library for ajax.\nweb development", got)
}

func TestCard(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		// sha256 of "q\na"
		assert.Equal(t, "27d2d5c8276a1f606af38834a9294ae5d3bfc6c5097c03e3fdd6e8c5c37e2ba7", Card("Q", "A"))
	})

	t.Run("hash is deterministic", func(t *testing.T) {
		assert.Equal(t, Card("Test", ""), Card("Test", ""))
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		assert.Equal(t, Card("  what is go? ", "A programming language."), Card("What Is Go?", "A programming language."))
	})

	t.Run("different cards have different hashes", func(t *testing.T) {
		assert.NotEqual(t, Card("Card 1", ""), Card("Card 2", ""))
	})

	t.Run("field boundaries matter", func(t *testing.T) {
		assert.NotEqual(t, Card("ab", "c"), Card("a", "bc"))
	})
}

func TestNoteHashIgnoresSurroundingWhitespace(t *testing.T) {
	assert.Equal(t, Note("Title", "body\r\n"), Note("title ", "body"))
	assert.NotEqual(t, Note("Title", "body"), Note("Title", "body changed"))
	assert.Len(t, Note("x", "y"), 64)
}
