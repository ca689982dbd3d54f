// Package chunker splits document text into overlapping, ordered windows
// for context-window-limited extraction.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Defaults tuned for ~12.5K-token model contexts, leaving room for the
// schema and the accumulated result.
const (
	DefaultThreshold = 50_000
	DefaultSize      = 40_000
	DefaultOverlap   = 2_000
)

// Chunk is a bounded, ordered slice of the source text. Offsets are byte
// offsets into the source; Text == source[StartOffset:EndOffset].
type Chunk struct {
	Index       int    `json:"index"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Text        string `json:"text"`
}

// ChunkingError reports degenerate chunking parameters. It is fatal and
// not retried.
type ChunkingError struct {
	Message string
}

func (e *ChunkingError) Error() string {
	return "chunking error: " + e.Message
}

// ShouldChunk reports whether the text exceeds the chunking threshold.
func ShouldChunk(text string, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return len(text) > threshold
}

// Split divides text into windows of at most maxChars with overlap chars
// repeated between consecutive windows. Window ends prefer a natural
// boundary (paragraph, then sentence break) within a small backtracking
// distance; otherwise the window is cut hard at a rune boundary.
//
// Invariants: chunks come out in strictly increasing index and start
// offset; every byte of the source is covered by at least one chunk; for
// a given (text, maxChars, overlap) the result is always the same.
func Split(text string, maxChars, overlap int) ([]Chunk, error) {
	if maxChars <= 0 {
		return nil, &ChunkingError{Message: fmt.Sprintf("max chars must be positive, got %d", maxChars)}
	}
	if overlap < 0 {
		return nil, &ChunkingError{Message: fmt.Sprintf("overlap must not be negative, got %d", overlap)}
	}
	if overlap >= maxChars {
		return nil, &ChunkingError{Message: fmt.Sprintf("overlap %d must be smaller than max chars %d", overlap, maxChars)}
	}

	if len(text) <= maxChars {
		return []Chunk{{Index: 0, StartOffset: 0, EndOffset: len(text), Text: text}}, nil
	}

	// Boundary search distance: 10% of the window.
	backtrack := maxChars / 10

	var chunks []Chunk
	start := 0
	for {
		end := start + maxChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end, backtrack)
			if end <= start {
				// Window narrower than the rune at start; take the whole rune
				// so the chunk is never empty.
				end = start + runeLen(text, start)
			}
		}
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			StartOffset: start,
			EndOffset:   end,
			Text:        text[start:end],
		})
		if end >= len(text) {
			return chunks, nil
		}
		next := alignRune(text, end-overlap)
		if next <= start {
			// Forced progress when overlap swallows the whole window.
			next = start + runeLen(text, start)
		}
		start = next
	}
}

// cutPoint picks where to end a window that would otherwise cut at target.
// Preference order: last paragraph break, last sentence break, last line
// break within backtrack bytes of target; otherwise a hard cut aligned to
// a rune boundary.
func cutPoint(text string, start, target, backtrack int) int {
	lo := target - backtrack
	if lo <= start {
		lo = start + 1
	}
	window := text[lo:target]

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return lo + i + 2
	}
	best := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(window, sep); i >= 0 && i+len(sep) > best {
			best = i + len(sep)
		}
	}
	if best >= 0 {
		return lo + best
	}
	if i := strings.LastIndexByte(window, '\n'); i >= 0 {
		return lo + i + 1
	}
	return alignRune(text, target)
}

// runeLen is the byte length of the rune starting at pos.
func runeLen(text string, pos int) int {
	_, size := utf8.DecodeRuneInString(text[pos:])
	if size == 0 {
		return 1
	}
	return size
}

// alignRune backs pos off to the nearest rune start so a cut never splits
// a multi-byte character.
func alignRune(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}
