package fathom

// --- LLM protocol types ---

type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UserMessage builds a single-element user message slice, the shape most
// prompts in this package use.
func UserMessage(content string) []ChatMessage {
	return []ChatMessage{{Role: RoleUser, Content: content}}
}

type ChatResponse struct {
	Content     string `json:"content"`
	TotalTokens int    `json:"total_tokens"`
}

// --- Retrieval types ---

// CollectionInfo describes one vector collection as reported by a store.
type CollectionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RetrievalResult is one passage returned by a vector store search.
type RetrievalResult struct {
	Embedding []float32      `json:"-"`
	Text      string         `json:"text"`
	Reference string         `json:"reference"`
	Metadata  map[string]any `json:"metadata"`
	Score     float32        `json:"score"`
}

// Metadata keys with meaning to the searchers.
const (
	MetaWiderText = "wider_text" // sentence-window context around a chunk
	MetaTitle     = "title"
)

// WiderText returns the sentence-window context stored in the result's
// metadata, or the chunk text when no window was recorded.
func (r RetrievalResult) WiderText() string {
	if w, ok := r.Metadata[MetaWiderText].(string); ok && w != "" {
		return w
	}
	return r.Text
}

// --- Ingestion types ---

// Document is a full source text before splitting.
type Document struct {
	Text      string         `json:"text"`
	Reference string         `json:"reference"` // file path or URL
	Metadata  map[string]any `json:"metadata"`
}

// Chunk is a split piece of a document, ready for embedding and insertion.
type Chunk struct {
	Text      string         `json:"text"`
	Reference string         `json:"reference"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"-"`
}

// --- Searcher output types ---

// RetrievalOutput is what a Searcher's Retrieve returns: the accepted
// results, the LLM tokens spent producing them, and the request-scoped
// trace of how the searcher got there.
type RetrievalOutput struct {
	Results []RetrievalResult
	Tokens  int

	// SubQueries holds every sub-query asked across iterations
	// (deep search only).
	SubQueries []string

	// Intermediate holds the "Intermediate queryN/answerN" lines
	// accumulated across hops (chain search only).
	Intermediate []string
}

// Answer is the final response of a Searcher's Query: the synthesized text,
// the deduplicated citations behind it, and the total LLM tokens consumed.
type Answer struct {
	Text    string
	Results []RetrievalResult
	Tokens  int
}
