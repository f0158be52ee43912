// Package chunker splits texts that exceed a provider's request limit into
// pieces that break at paragraph, sentence or word boundaries.
package chunker

import (
	"strings"
	"unicode"
)

// Chunk splits text into pieces each no longer than maxChars code points.
// Splits are attempted, in order of preference, at:
//  1. Paragraph boundaries (\n\n or \r\n\r\n)
//  2. Sentence-ending punctuation (. ! ?) followed by whitespace
//  3. Whitespace
//  4. A hard cut at maxChars
//
// If text fits, or maxChars ≤ 0, a single-element slice is returned.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 || len([]rune(text)) <= maxChars {
		return []string{text}
	}

	var chunks []string
	remaining := []rune(text)
	for len(remaining) > maxChars {
		split := findSplit(remaining, maxChars)
		if chunk := strings.TrimSpace(string(remaining[:split])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = []rune(strings.TrimSpace(string(remaining[split:])))
	}
	if len(remaining) > 0 {
		chunks = append(chunks, string(remaining))
	}
	return chunks
}

// Split is Chunk plus the separator that reassembles translated pieces:
// a newline when text spans several lines, a space otherwise.
func Split(text string, maxChars int) ([]string, string) {
	sep := " "
	if strings.Contains(text, "\n") {
		sep = "\n"
	}
	return Chunk(text, maxChars), sep
}

// findSplit returns the rune index at which to cut, never beyond maxChars.
func findSplit(runes []rune, maxChars int) int {
	candidate := runes[:maxChars]

	// Paragraph boundary; the blank line goes with the first part.
	for i := len(candidate) - 2; i > 0; i-- {
		if candidate[i] == '\n' && candidate[i+1] == '\n' {
			return i + 2
		}
		if i >= 3 && string(candidate[i-2:i+2]) == "\r\n\r\n" {
			return i + 2
		}
	}

	for i := len(candidate) - 2; i > 0; i-- {
		r := candidate[i]
		if (r == '.' || r == '!' || r == '?') && unicode.IsSpace(candidate[i+1]) {
			return i + 1
		}
	}

	for i := len(candidate) - 1; i > 0; i-- {
		if unicode.IsSpace(candidate[i]) {
			return i
		}
	}

	return maxChars
}
