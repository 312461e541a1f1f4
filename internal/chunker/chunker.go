// Package chunker splits documents into fixed-size overlapping character
// windows. Windows are counted in runes and ignore word or sentence
// boundaries.
package chunker

import (
	"path"
	"strconv"
	"strings"
)

// NormalizeWhitespace collapses runs of whitespace into single spaces and
// trims both ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Step is the distance between window starts. It is at least 1 so the loop
// always advances, even when overlap >= size.
func Step(chunkSize, chunkOverlap int) int {
	return max(1, chunkSize-chunkOverlap)
}

// ChunkText normalizes text and cuts it into windows of chunkSize runes,
// starting every Step(chunkSize, chunkOverlap) runes. The last window may be
// shorter. Empty input yields an empty slice.
func ChunkText(text string, chunkSize, chunkOverlap int) []string {
	text = NormalizeWhitespace(text)
	if text == "" {
		return []string{}
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}
	runes := []rune(text)
	step := Step(chunkSize, chunkOverlap)

	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(len(runes), start+chunkSize)
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// IDPrefix is the chunk id prefix for a source file: its path relative to
// the raw directory without the final extension.
// "notes/policy.v2.txt" -> "notes/policy.v2".
func IDPrefix(sourceFile string) string {
	p := path.Clean(strings.ReplaceAll(sourceFile, "\\", "/"))
	dir, base := path.Split(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		stem = base
	}
	return dir + stem
}

// JoinID appends the zero-based window index to prefix.
// "notes/policy.v2", 3 -> "notes/policy.v2_3".
func JoinID(prefix string, i int) string {
	return prefix + "_" + strconv.Itoa(i)
}
