// Copyright (C) 2026 Docline
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chunker splits extracted document text into token-bounded,
// paragraph-aligned chunks with configurable overlap.
package chunker

import (
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/docline/docline/internal/config"
	"github.com/docline/docline/internal/logger"
)

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// Chunker greedily accumulates paragraphs into chunks of roughly
// TargetTokens tokens. When OverlapTokens is positive, the last paragraph of
// a chunk is carried into the next one. Chunks shorter than MinChars
// characters are dropped. Safe for concurrent use.
type Chunker struct {
	TargetTokens  int
	OverlapTokens int
	MinChars      int

	encoding *tiktoken.Tiktoken
}

// New creates a chunker from the chunk configuration. Token counts use the
// cl100k_base encoding; if it cannot be loaded the chunker falls back to a
// word-count approximation.
func New(cfg *config.ChunkConfig) *Chunker {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log := logger.GetChunkerLogger()
		log.Warn().
			Err(err).
			Msg("cl100k_base encoding unavailable, falling back to word-count estimation")
		encoding = nil
	}
	return &Chunker{
		TargetTokens:  cfg.Size,
		OverlapTokens: cfg.Overlap,
		MinChars:      cfg.MinSize,
		encoding:      encoding,
	}
}

// Split breaks text into chunks. Empty input yields no chunks; input whose
// paragraphs all fall under MinChars yields a single head-of-text chunk so
// that no nonempty document ever chunks to nothing.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return []string{}
	}

	paragraphs := paragraphSplit.Split(text, -1)

	var chunks []string
	var current []string
	currentSize := 0

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		paraTokens := c.CountTokens(para)

		if currentSize+paraTokens > c.TargetTokens && len(current) > 0 {
			chunkText := strings.Join(current, "\n\n")
			if len(chunkText) >= c.MinChars {
				chunks = append(chunks, chunkText)
			}

			if c.OverlapTokens > 0 {
				// Keep the last paragraph for overlap
				last := current[len(current)-1]
				current = []string{last}
				currentSize = c.CountTokens(last)
			} else {
				current = nil
				currentSize = 0
			}
		}

		current = append(current, para)
		currentSize += paraTokens
	}

	if len(current) > 0 {
		chunkText := strings.Join(current, "\n\n")
		if len(chunkText) >= c.MinChars {
			chunks = append(chunks, chunkText)
		}
	}

	if len(chunks) == 0 {
		limit := c.TargetTokens
		if limit > len(text) {
			limit = len(text)
		}
		return []string{text[:limit]}
	}
	return chunks
}

// CountTokens counts tokens in text with the cl100k_base encoding, or
// approximates from the word count when the encoding is unavailable.
func (c *Chunker) CountTokens(text string) int {
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	return int(float64(len(strings.Fields(text))) * 1.3)
}
