package fathom

import "fmt"

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrParse reports an LLM reply that could not be coerced into the
// expected structure. Raw keeps the reply for diagnostics.
type ErrParse struct {
	Raw string
}

func (e *ErrParse) Error() string {
	return fmt.Sprintf("unparseable llm reply: %s", truncate(e.Raw, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
