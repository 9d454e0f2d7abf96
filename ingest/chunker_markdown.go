package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var _ Chunker = (*MarkdownChunker)(nil)

// MarkdownChunker splits text at markdown heading boundaries.
// It preserves heading markers in chunks for better LLM context.
//
// Strategy:
//  1. Split on heading boundaries located via the goldmark AST
//  2. Heading + content = candidate chunk
//  3. If too large → fall back to RecursiveChunker for that section
//  4. If too small → merge with next section up to maxBytes
type MarkdownChunker struct {
	maxBytes int
	fallback *RecursiveChunker
}

// NewMarkdownChunker creates a MarkdownChunker with the given options.
// Options WithChunkSize and WithChunkOverlap are respected.
func NewMarkdownChunker(opts ...ChunkerOption) *MarkdownChunker {
	cfg := defaultChunkerConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &MarkdownChunker{
		maxBytes: cfg.chunkSize,
		fallback: NewRecursiveChunker(opts...),
	}
}

// Chunk splits markdown text into chunks respecting heading boundaries.
func (mc *MarkdownChunker) Chunk(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if len(s) <= mc.maxBytes {
		return []string{s}
	}

	sections := mc.splitSections(s)
	return mc.mergeSections(sections)
}

// splitSections splits markdown text into sections at heading boundaries.
// Boundaries come from the parsed AST rather than a line regex, so heading
// markers inside fenced code blocks do not cause splits.
func (mc *MarkdownChunker) splitSections(s string) []string {
	offsets := headingOffsets(s)
	if len(offsets) == 0 {
		return []string{s}
	}

	var sections []string
	// Content before first heading (if any).
	if offsets[0] > 0 {
		pre := strings.TrimSpace(s[:offsets[0]])
		if pre != "" {
			sections = append(sections, pre)
		}
	}

	for i, off := range offsets {
		end := len(s)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		section := strings.TrimSpace(s[off:end])
		if section != "" {
			sections = append(sections, section)
		}
	}

	return sections
}

// headingOffsets parses the markdown and returns the byte offset of the line
// containing each heading, in document order.
func headingOffsets(s string) []int {
	source := []byte(s)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var offsets []int
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		// The segment covers the heading text. Walk back to the line start
		// so the split keeps the # markers with the section.
		start := lines.At(0).Start
		for start > 0 && source[start-1] != '\n' {
			start--
		}
		offsets = append(offsets, start)
		return ast.WalkContinue, nil
	})
	return offsets
}

// mergeSections merges small sections together and splits large ones.
func (mc *MarkdownChunker) mergeSections(sections []string) []string {
	var chunks []string
	var current strings.Builder

	for _, section := range sections {
		// Section too large on its own — split with fallback chunker.
		if len(section) > mc.maxBytes {
			// Flush current buffer first.
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, mc.fallback.Chunk(section)...)
			continue
		}

		needed := len(section)
		if current.Len() > 0 {
			needed = current.Len() + 2 + len(section) // "\n\n" separator
		}

		if needed <= mc.maxBytes {
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(section)
		} else {
			// Flush and start new.
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			current.WriteString(section)
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}
