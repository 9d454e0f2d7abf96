package fathom

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens for a model's encoding. Backends that omit
// usage figures get their totals estimated with it, and the ingest splitter
// can size chunks by tokens instead of characters.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// NewTokenCounter builds a counter for the model, falling back to the
// cl100k_base encoding for models tiktoken does not know. Encodings are
// cached per model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return &TokenCounter{encoding: enc, model: model}, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	encodingCache[model] = enc
	return &TokenCounter{encoding: enc, model: model}, nil
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages counts tokens across messages including per-message role
// overhead, after the OpenAI chat format.
func (tc *TokenCounter) CountMessages(messages []ChatMessage) int {
	const perMessage = 3
	total := perMessage // reply priming
	for _, m := range messages {
		total += perMessage
		total += len(tc.encoding.Encode(m.Role, nil, nil))
		total += len(tc.encoding.Encode(m.Content, nil, nil))
	}
	return total
}

// Model returns the model name the counter was built for.
func (tc *TokenCounter) Model() string { return tc.model }

// EstimateTokens roughly estimates a token count at four characters per
// token, for callers without a TokenCounter (tiktoken loads encodings
// lazily and can fail offline).
func EstimateTokens(text string) int {
	return len(text) / 4
}
