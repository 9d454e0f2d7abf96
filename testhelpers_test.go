package fathom

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// mockProvider is a test Provider that returns canned responses in order.
// Use it for strictly sequential flows; parallel flows want scriptProvider.
type mockProvider struct {
	mu        sync.Mutex
	responses []ChatResponse // popped in order
	idx       int
	err       error    // returned on every call when set
	prompts   []string // last user message of each call, in order
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Chat(_ context.Context, messages []ChatMessage) (ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, messages[len(messages)-1].Content)
	if m.err != nil {
		return ChatResponse{}, m.err
	}
	if m.idx >= len(m.responses) {
		return ChatResponse{Content: "exhausted"}, nil
	}
	resp := m.responses[m.idx]
	m.idx++
	return resp, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// scriptRule maps a prompt substring to a canned reply.
type scriptRule struct {
	match  string
	reply  string
	tokens int
	err    error
}

// scriptProvider is a test Provider that answers by prompt content: the
// first rule whose match substring appears in the prompt wins. Calls with no
// matching rule fail loudly. Deterministic under concurrent calls.
type scriptProvider struct {
	mu    sync.Mutex
	rules []scriptRule
	calls []string
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Chat(_ context.Context, messages []ChatMessage) (ChatResponse, error) {
	prompt := messages[len(messages)-1].Content
	p.mu.Lock()
	p.calls = append(p.calls, prompt)
	p.mu.Unlock()
	for _, r := range p.rules {
		if strings.Contains(prompt, r.match) {
			if r.err != nil {
				return ChatResponse{}, r.err
			}
			return ChatResponse{Content: r.reply, TotalTokens: r.tokens}, nil
		}
	}
	return ChatResponse{}, fmt.Errorf("no scripted reply for prompt: %.80s", prompt)
}

// callsMatching returns the recorded prompts containing the substring.
func (p *scriptProvider) callsMatching(match string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.calls {
		if strings.Contains(c, match) {
			out = append(out, c)
		}
	}
	return out
}

// fakeEmbedder returns zero vectors of a fixed dimension.
type fakeEmbedder struct {
	dim int
	err error

	mu      sync.Mutex
	queries []string
}

func (f *fakeEmbedder) Name() string    { return "fake-embed" }
func (f *fakeEmbedder) Dimensions() int { return f.dim }

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	return make([]float32, f.dim), nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type memCollection struct {
	description string
	dim         int
	results     []RetrievalResult
}

type searchCall struct {
	collection string
	topK       int
}

// memDB is an in-memory VectorDB fake. Searches ignore the query vector and
// return the collection's canned results capped at topK.
type memDB struct {
	mu          sync.Mutex
	order       []string
	collections map[string]*memCollection
	def         string
	searchErr   error
	searches    []searchCall
}

func newMemDB() *memDB {
	return &memDB{collections: make(map[string]*memCollection), def: DefaultCollection}
}

func (m *memDB) add(name, description string, dim int, results ...RetrievalResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.order = append(m.order, name)
	}
	m.collections[name] = &memCollection{description: description, dim: dim, results: results}
}

func (m *memDB) InitCollection(_ context.Context, dim int, collection, description string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; ok && !force {
		return nil
	}
	if _, ok := m.collections[collection]; !ok {
		m.order = append(m.order, collection)
	}
	m.collections[collection] = &memCollection{description: description, dim: dim}
	return nil
}

func (m *memDB) Insert(_ context.Context, collection string, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("no such collection %q", collection)
	}
	for _, c := range chunks {
		col.results = append(col.results, RetrievalResult{
			Embedding: c.Embedding,
			Text:      c.Text,
			Reference: c.Reference,
			Metadata:  c.Metadata,
		})
	}
	return nil
}

func (m *memDB) Search(_ context.Context, collection string, _ []float32, topK int) ([]RetrievalResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, searchCall{collection: collection, topK: topK})
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	col, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("no such collection %q", collection)
	}
	results := col.results
	if topK < len(results) {
		results = results[:topK]
	}
	out := make([]RetrievalResult, len(results))
	copy(out, results)
	return out, nil
}

func (m *memDB) ListCollections(_ context.Context, dim int) ([]CollectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []CollectionInfo
	for _, name := range m.order {
		col := m.collections[name]
		if dim > 0 && col.dim != dim {
			continue
		}
		infos = append(infos, CollectionInfo{Name: name, Description: col.description})
	}
	return infos, nil
}

func (m *memDB) Clear(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	for i, name := range m.order {
		if name == collection {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memDB) DefaultCollection() string { return m.def }

func (m *memDB) searchedCollections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.searches))
	for i, s := range m.searches {
		out[i] = s.collection
	}
	return out
}

// stubSearcher is a minimal Searcher for router tests.
type stubSearcher struct {
	name       string
	desc       string
	retrieveFn func(string) (RetrievalOutput, error)
	queryFn    func(string) (Answer, error)
}

func (s *stubSearcher) Name() string        { return s.name }
func (s *stubSearcher) Description() string { return s.desc }

func (s *stubSearcher) Retrieve(_ context.Context, query string, _ ...QueryOption) (RetrievalOutput, error) {
	if s.retrieveFn == nil {
		return RetrievalOutput{}, nil
	}
	return s.retrieveFn(query)
}

func (s *stubSearcher) Query(_ context.Context, query string, _ ...QueryOption) (Answer, error) {
	if s.queryFn == nil {
		return Answer{}, nil
	}
	return s.queryFn(query)
}

// texts projects results to their chunk texts for compact assertions.
func texts(results []RetrievalResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sameStringSet compares ignoring order.
func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
		if seen[s] < 0 {
			return false
		}
	}
	return true
}
