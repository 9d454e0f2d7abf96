package fathom

import (
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// literalRe matches a bracketed list or brace-delimited object across
// newlines. Non-greedy: nested structures stop at the first closing bracket,
// which is all the flat lists the searchers expect ever need.
var literalRe = regexp.MustCompile(`(?s)(\[.*?\]|\{.*?\})`)

// StripThink removes a <think>...</think> reasoning span and trims
// whitespace. Reasoning models prefix replies with one.
func StripThink(content string) string {
	start := strings.Index(content, "<think>")
	end := strings.LastIndex(content, "</think>")
	if start >= 0 && end > start {
		content = content[:start] + content[end+len("</think>"):]
	}
	return strings.TrimSpace(content)
}

// ParseStringList coerces an LLM reply into a list of strings, tolerating a
// leading reasoning span, a fenced code block, and python-style quoting.
func ParseStringList(content string) ([]string, error) {
	v, err := parseLiteral(content)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &ErrParse{Raw: content}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, &ErrParse{Raw: content}
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseIntList coerces an LLM reply into a list of integers. Elements may
// arrive as numbers or numeric strings.
func ParseIntList(content string) ([]int, error) {
	v, err := parseLiteral(content)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &ErrParse{Raw: content}
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		switch n := it.(type) {
		case json.Number:
			i, err := strconv.Atoi(n.String())
			if err != nil {
				return nil, &ErrParse{Raw: content}
			}
			out = append(out, i)
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return nil, &ErrParse{Raw: content}
			}
			out = append(out, i)
		default:
			return nil, &ErrParse{Raw: content}
		}
	}
	return out, nil
}

// parseLiteral is the tolerant pipeline: cut a leading reasoning span, try
// the strict path (fence strip + decode), then fall back to scanning for
// exactly one bracketed literal.
func parseLiteral(content string) (any, error) {
	s := strings.TrimSpace(content)
	if strings.Contains(s, "<think>") {
		if i := strings.Index(s, "</think>"); i >= 0 {
			s = strings.TrimSpace(s[i+len("</think>"):])
		}
	}
	if v, err := parseStrict(s); err == nil {
		return v, nil
	}
	matches := literalRe.FindAllString(s, -1)
	if len(matches) != 1 {
		return nil, &ErrParse{Raw: content}
	}
	v, err := parseValue(matches[0])
	if err != nil {
		return nil, &ErrParse{Raw: content}
	}
	return v, nil
}

// parseStrict unwraps one fenced code block and decodes. Fence tags other
// than python/json/str are rejected here and left to the bracket scan.
func parseStrict(s string) (any, error) {
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) > 6 {
		switch {
		case strings.HasPrefix(s, "```python"):
			s = s[len("```python") : len(s)-3]
		case strings.HasPrefix(s, "```json"):
			s = s[len("```json") : len(s)-3]
		case strings.HasPrefix(s, "```str"):
			s = s[len("```str") : len(s)-3]
		case strings.HasPrefix(s, "```\n"):
			s = s[len("```\n") : len(s)-3]
		default:
			return nil, &ErrParse{Raw: s}
		}
	}
	return parseValue(strings.TrimSpace(s))
}

// parseValue decodes a JSON value, tolerating python-style single-quoted
// strings when the reply contains no double quotes.
func parseValue(s string) (any, error) {
	v, err := decodeJSON(s)
	if err == nil {
		return v, nil
	}
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return decodeJSON(strings.ReplaceAll(s, "'", `"`))
	}
	return nil, err
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// Reject trailing content; surrounding prose is the bracket scan's job.
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ErrParse{Raw: s}
	}
	return v, nil
}
