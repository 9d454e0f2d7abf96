package ingest

import (
	"strings"
	"unicode/utf8"
)

// locateChunk finds the byte range of chunk within source. Chunks produced by
// the recursive chunker are not always exact substrings of the source (merge
// joins paragraphs with a single newline and prepends overlap text), so when
// the exact match fails the range is recovered from the chunk's first and
// last lines, which are true substrings.
func locateChunk(source, chunk string) (start, end int, ok bool) {
	if chunk == "" {
		return 0, 0, false
	}
	if idx := strings.Index(source, chunk); idx >= 0 {
		return idx, idx + len(chunk), true
	}

	firstLine := chunk
	if i := strings.IndexByte(chunk, '\n'); i >= 0 {
		firstLine = chunk[:i]
	}
	lastLine := chunk
	if i := strings.LastIndexByte(chunk, '\n'); i >= 0 {
		lastLine = chunk[i+1:]
	}

	start = strings.Index(source, firstLine)
	if start < 0 {
		return 0, 0, false
	}
	if rel := strings.Index(source[start:], lastLine); rel >= 0 {
		end = start + rel + len(lastLine)
	} else {
		end = start + len(chunk)
		if end > len(source) {
			end = len(source)
		}
	}
	return start, end, true
}

// window expands the byte range [start, end) by margin bytes on each side and
// returns the covered slice of source, snapped outward to rune boundaries.
func window(source string, start, end, margin int) string {
	lo := start - margin
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(source[lo]) {
		lo--
	}

	hi := end + margin
	if hi > len(source) {
		hi = len(source)
	}
	for hi < len(source) && !utf8.RuneStart(source[hi]) {
		hi++
	}

	return source[lo:hi]
}
