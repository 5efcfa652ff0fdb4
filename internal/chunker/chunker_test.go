// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docline/docline/internal/config"
)

// newTestChunker builds a chunker with word-count token estimation so tests
// don't depend on the tiktoken encoding being loadable.
func newTestChunker(target, overlap, minChars int) *Chunker {
	return &Chunker{
		TargetTokens:  target,
		OverlapTokens: overlap,
		MinChars:      minChars,
	}
}

func TestSplitEmptyInput(t *testing.T) {
	c := newTestChunker(100, 0, 10)
	assert.Empty(t, c.Split(""))
}

func TestSplitSingleParagraph(t *testing.T) {
	c := newTestChunker(100, 0, 5)
	chunks := c.Split("a short paragraph of text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph of text", chunks[0])
}

func TestSplitRespectsTargetTokens(t *testing.T) {
	c := newTestChunker(15, 0, 5)

	para := strings.Repeat("word ", 10) // ~13 estimated tokens per paragraph
	text := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	chunks := c.Split(text)
	assert.Greater(t, len(chunks), 1, "three over-budget paragraphs must not fit one chunk")
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk)
	}
}

func TestSplitOverlapCarriesLastParagraph(t *testing.T) {
	c := newTestChunker(15, 5, 1)

	text := "first paragraph with several words here\n\nsecond paragraph with several words here\n\nthird paragraph with several words here"
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	// With overlap enabled, each chunk after the first starts with the last
	// paragraph of its predecessor.
	for i := 1; i < len(chunks); i++ {
		prevParas := strings.Split(chunks[i-1], "\n\n")
		assert.True(t, strings.HasPrefix(chunks[i], prevParas[len(prevParas)-1]),
			"chunk %d should start with the previous chunk's last paragraph", i)
	}
}

func TestSplitNoOverlapHasNoRepeats(t *testing.T) {
	c := newTestChunker(15, 0, 1)

	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa\n\nlambda mu nu xi omicron pi rho sigma tau upsilon"
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.NotContains(t, chunks[1], "alpha")
}

func TestSplitDropsShortChunks(t *testing.T) {
	c := newTestChunker(100, 0, 50)

	chunks := c.Split("tiny\n\n" + strings.Repeat("a meaningful paragraph with enough characters to survive ", 2))
	for _, chunk := range chunks {
		assert.GreaterOrEqual(t, len(chunk), 50)
	}
}

func TestSplitFallbackNeverLosesNonemptyInput(t *testing.T) {
	// Every paragraph is under MinChars, so the normal path yields nothing.
	// The fallback must still produce one head-of-text chunk.
	c := newTestChunker(100, 0, 500)
	chunks := c.Split("short one\n\nshort two")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short one", chunks[0][:9])
}

func TestSplitFallbackClampsToTextLength(t *testing.T) {
	c := newTestChunker(1000, 0, 500)
	chunks := c.Split("tiny")
	require.Len(t, chunks, 1)
	assert.Equal(t, "tiny", chunks[0])
}

func TestCountTokensWordEstimate(t *testing.T) {
	c := newTestChunker(100, 0, 1)
	// 10 words * 1.3, truncated.
	assert.Equal(t, 13, c.CountTokens(strings.TrimSpace(strings.Repeat("word ", 10))))
	assert.Equal(t, 0, c.CountTokens(""))
}

func TestNewUsesConfigValues(t *testing.T) {
	c := New(&config.ChunkConfig{Size: 1000, Overlap: 200, MinSize: 100})
	assert.Equal(t, 1000, c.TargetTokens)
	assert.Equal(t, 200, c.OverlapTokens)
	assert.Equal(t, 100, c.MinChars)
}
