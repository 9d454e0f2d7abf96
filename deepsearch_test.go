package fathom

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// deepFixture wires a DeepSearch against one "fathom" collection holding the
// given results, so routing takes the single-collection shortcut and spends
// no tokens.
func deepFixture(results []RetrievalResult, rules []scriptRule, opts ...SearcherOption) (*DeepSearch, *scriptProvider, *memDB) {
	db := newMemDB()
	db.add(DefaultCollection, "everything", 4, results...)
	llm := &scriptProvider{rules: rules}
	emb := &fakeEmbedder{dim: 4}
	return NewDeepSearch(llm, emb, db, opts...), llm, db
}

func TestDeepSearchSingleIteration(t *testing.T) {
	results := []RetrievalResult{{Text: "alpha"}, {Text: "beta"}}
	rules := []scriptRule{
		{match: "break down the original question", reply: `["q1", "q2"]`, tokens: 5},
		{match: "<chunk>alpha", reply: "YES", tokens: 2},
		{match: "<chunk>beta", reply: "NO", tokens: 2},
	}
	deep, llm, db := deepFixture(results, rules)

	out, err := deep.Retrieve(context.Background(), "tell me about alpha", WithMaxIter(1))
	if err != nil {
		t.Fatal(err)
	}
	if !sameStrings(out.SubQueries, []string{"q1", "q2"}) {
		t.Errorf("SubQueries = %v, want [q1 q2]", out.SubQueries)
	}
	// Both sub-queries hit the same collection; alpha is accepted twice and
	// deduplicated, beta is judged unhelpful.
	if !sameStrings(texts(out.Results), []string{"alpha"}) {
		t.Errorf("Results = %v, want [alpha]", texts(out.Results))
	}
	// 5 for decomposition, then 2 sub-queries x 2 chunks x 2 judge tokens.
	if out.Tokens != 13 {
		t.Errorf("Tokens = %d, want 13", out.Tokens)
	}
	if got := len(db.searchedCollections()); got != 2 {
		t.Errorf("searches = %d, want 2 (one per sub-query)", got)
	}
	if calls := llm.callsMatching("Determine whether additional search queries"); len(calls) != 0 {
		t.Errorf("reflection ran %d times with a one-iteration cap", len(calls))
	}
}

func TestDeepSearchReflectionAddsIteration(t *testing.T) {
	results := []RetrievalResult{{Text: "alpha"}, {Text: "beta"}}
	rules := []scriptRule{
		{match: "break down the original question", reply: `["q1"]`, tokens: 4},
		{match: "Determine whether additional search queries", reply: `["gap1"]`, tokens: 3},
		{match: "<chunk>alpha", reply: "YES", tokens: 2},
		{match: "<chunk>beta", reply: "NO", tokens: 2},
	}
	deep, llm, _ := deepFixture(results, rules, MaxIter(2))

	out, err := deep.Retrieve(context.Background(), "original question")
	if err != nil {
		t.Fatal(err)
	}
	if !sameStrings(out.SubQueries, []string{"q1", "gap1"}) {
		t.Errorf("SubQueries = %v, want [q1 gap1]", out.SubQueries)
	}
	if !sameStrings(texts(out.Results), []string{"alpha"}) {
		t.Errorf("Results = %v, want [alpha]", texts(out.Results))
	}
	// 4 decompose + 4 judging (iter 1) + 3 reflect + 4 judging (iter 2).
	if out.Tokens != 15 {
		t.Errorf("Tokens = %d, want 15", out.Tokens)
	}
	reflects := llm.callsMatching("Determine whether additional search queries")
	if len(reflects) != 1 {
		t.Fatalf("reflection ran %d times, want 1", len(reflects))
	}
	if !strings.Contains(reflects[0], "'q1'") {
		t.Errorf("reflection prompt missing prior sub-queries:\n%s", reflects[0])
	}
}

func TestDeepSearchNoSubQueries(t *testing.T) {
	rules := []scriptRule{
		{match: "break down the original question", reply: `[]`, tokens: 5},
	}
	deep, _, db := deepFixture(nil, rules)

	out, err := deep.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 0 || len(out.SubQueries) != 0 {
		t.Errorf("out = %+v, want empty", out)
	}
	if out.Tokens != 5 {
		t.Errorf("Tokens = %d, want 5", out.Tokens)
	}
	if len(db.searchedCollections()) != 0 {
		t.Error("searched despite empty decomposition")
	}
}

func TestDeepSearchUnparseableSubQueries(t *testing.T) {
	rules := []scriptRule{
		{match: "break down the original question", reply: "cannot comply", tokens: 9},
	}
	deep, _, _ := deepFixture(nil, rules)

	out, err := deep.Retrieve(context.Background(), "q")
	if err == nil {
		t.Fatal("want error for unparseable decomposition")
	}
	var pe *ErrParse
	if !errors.As(err, &pe) {
		t.Errorf("error = %v, want *ErrParse", err)
	}
	if out.Tokens != 9 {
		t.Errorf("Tokens = %d, want 9 even on failure", out.Tokens)
	}
}

func TestDeepSearchUnparseableReflection(t *testing.T) {
	results := []RetrievalResult{{Text: "alpha"}, {Text: "beta"}}
	rules := []scriptRule{
		{match: "break down the original question", reply: `["q1"]`, tokens: 4},
		{match: "Determine whether additional search queries", reply: "no more needed", tokens: 6},
		{match: "<chunk>alpha", reply: "YES", tokens: 2},
		{match: "<chunk>beta", reply: "NO", tokens: 2},
	}
	deep, _, _ := deepFixture(results, rules, MaxIter(2))

	out, err := deep.Retrieve(context.Background(), "q")
	if err == nil {
		t.Fatal("want error for unparseable reflection")
	}
	// Chunks accepted before the failure stay on the output.
	if !sameStrings(texts(out.Results), []string{"alpha"}) {
		t.Errorf("Results = %v, want [alpha]", texts(out.Results))
	}
	if out.Tokens != 14 {
		t.Errorf("Tokens = %d, want 14", out.Tokens)
	}
}

func TestDeepSearchJudgeFailureDropsChunk(t *testing.T) {
	results := []RetrievalResult{{Text: "alpha"}, {Text: "beta"}}
	rules := []scriptRule{
		{match: "break down the original question", reply: `["q1"]`, tokens: 4},
		{match: "<chunk>alpha", err: errors.New("judge down")},
		{match: "<chunk>beta", reply: "YES", tokens: 2},
	}
	deep, _, _ := deepFixture(results, rules, MaxIter(1))

	out, err := deep.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("judge failure must not fail the task: %v", err)
	}
	if !sameStrings(texts(out.Results), []string{"beta"}) {
		t.Errorf("Results = %v, want [beta]", texts(out.Results))
	}
	if out.Tokens != 6 {
		t.Errorf("Tokens = %d, want 6", out.Tokens)
	}
}

func TestDeepSearchJudgeVerdictParsing(t *testing.T) {
	results := []RetrievalResult{{Text: "alpha"}, {Text: "beta"}, {Text: "gamma"}}
	rules := []scriptRule{
		{match: "break down the original question", reply: `["q1"]`, tokens: 1},
		// A YES inside the reasoning span must not count.
		{match: "<chunk>alpha", reply: "<think>could be YES</think>NO", tokens: 1},
		{match: "<chunk>beta", reply: "<think>checking</think> YES", tokens: 1},
		// An ambivalent reply mentioning both verdicts is a rejection.
		{match: "<chunk>gamma", reply: "NO, wait, YES", tokens: 1},
	}
	deep, _, _ := deepFixture(results, rules, MaxIter(1))

	out, err := deep.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if !sameStrings(texts(out.Results), []string{"beta"}) {
		t.Errorf("Results = %v, want [beta]", texts(out.Results))
	}
}

func TestDeepSearchSearchError(t *testing.T) {
	rules := []scriptRule{
		{match: "break down the original question", reply: `["q1"]`, tokens: 4},
	}
	deep, _, db := deepFixture([]RetrievalResult{{Text: "alpha"}}, rules, MaxIter(1))
	db.searchErr = errors.New("store down")

	out, err := deep.Retrieve(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "store down") {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	if out.Tokens != 4 {
		t.Errorf("Tokens = %d, want 4", out.Tokens)
	}
}

func TestDeepSearchEmbedError(t *testing.T) {
	db := newMemDB()
	db.add(DefaultCollection, "everything", 4, RetrievalResult{Text: "alpha"})
	llm := &scriptProvider{rules: []scriptRule{
		{match: "break down the original question", reply: `["q1"]`, tokens: 4},
	}}
	emb := &fakeEmbedder{dim: 4, err: errors.New("embed down")}
	deep := NewDeepSearch(llm, emb, db, MaxIter(1))

	_, err := deep.Retrieve(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "embed down") {
		t.Fatalf("err = %v, want wrapped embed error", err)
	}
}

func TestDeepSearchQueryNoResults(t *testing.T) {
	rules := []scriptRule{
		{match: "break down the original question", reply: `[]`, tokens: 5},
	}
	deep, llm, _ := deepFixture(nil, rules)

	answer, err := deep.Query(context.Background(), "unknown topic")
	if err != nil {
		t.Fatal(err)
	}
	want := "No relevant information found for query 'unknown topic'."
	if answer.Text != want {
		t.Errorf("Text = %q, want %q", answer.Text, want)
	}
	if answer.Tokens != 5 {
		t.Errorf("Tokens = %d, want 5", answer.Tokens)
	}
	if calls := llm.callsMatching("summarizing content"); len(calls) != 0 {
		t.Error("summary ran despite empty retrieval")
	}
}

func TestDeepSearchQuerySummarizesWiderText(t *testing.T) {
	results := []RetrievalResult{
		{Text: "alpha", Metadata: map[string]any{MetaWiderText: "alpha with window"}},
		{Text: "beta"},
	}
	rules := []scriptRule{
		{match: "break down the original question", reply: `["q1", "q2"]`, tokens: 5},
		{match: "<chunk>alpha", reply: "YES", tokens: 2},
		{match: "<chunk>beta", reply: "NO", tokens: 2},
		{match: "summarizing content", reply: "A fine summary.", tokens: 11},
	}
	deep, llm, _ := deepFixture(results, rules)

	answer, err := deep.Query(context.Background(), "tell me about alpha", WithMaxIter(1))
	if err != nil {
		t.Fatal(err)
	}
	if answer.Text != "A fine summary." {
		t.Errorf("Text = %q, want %q", answer.Text, "A fine summary.")
	}
	if answer.Tokens != 24 {
		t.Errorf("Tokens = %d, want 24", answer.Tokens)
	}
	if !sameStrings(texts(answer.Results), []string{"alpha"}) {
		t.Errorf("Results = %v, want [alpha]", texts(answer.Results))
	}
	summaries := llm.callsMatching("summarizing content")
	if len(summaries) != 1 {
		t.Fatalf("summary ran %d times, want 1", len(summaries))
	}
	if !strings.Contains(summaries[0], "alpha with window") {
		t.Errorf("summary prompt does not prefer the sentence window:\n%s", summaries[0])
	}
	if !strings.Contains(summaries[0], "'q1'") {
		t.Errorf("summary prompt missing sub-queries:\n%s", summaries[0])
	}
}

func TestDeepSearchQueryTextWindowDisabled(t *testing.T) {
	results := []RetrievalResult{
		{Text: "alpha", Metadata: map[string]any{MetaWiderText: "alpha with window"}},
	}
	rules := []scriptRule{
		{match: "break down the original question", reply: `["q1"]`, tokens: 1},
		{match: "<chunk>alpha", reply: "YES", tokens: 1},
		{match: "summarizing content", reply: "ok", tokens: 1},
	}
	deep, llm, _ := deepFixture(results, rules, MaxIter(1), DisableTextWindow())

	if _, err := deep.Query(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	summaries := llm.callsMatching("summarizing content")
	if len(summaries) != 1 {
		t.Fatalf("summary ran %d times, want 1", len(summaries))
	}
	if strings.Contains(summaries[0], "alpha with window") {
		t.Error("summary used the sentence window with the text window disabled")
	}
}

func TestDeepSearchRoutingDisabledSearchesAll(t *testing.T) {
	db := newMemDB()
	db.add("first", "described", 4, RetrievalResult{Text: "alpha"})
	db.add("second", "also described", 4, RetrievalResult{Text: "beta"})
	llm := &scriptProvider{rules: []scriptRule{
		{match: "break down the original question", reply: `["q1"]`, tokens: 1},
		{match: "<chunk>", reply: "YES", tokens: 1},
	}}
	emb := &fakeEmbedder{dim: 4}
	deep := NewDeepSearch(llm, emb, db, MaxIter(1), DisableRouting(), Concurrency(1))

	out, err := deep.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if !sameStringSet(db.searchedCollections(), []string{"first", "second"}) {
		t.Errorf("searched %v, want both collections", db.searchedCollections())
	}
	if !sameStringSet(texts(out.Results), []string{"alpha", "beta"}) {
		t.Errorf("Results = %v, want alpha+beta", texts(out.Results))
	}
	if calls := llm.callsMatching("COLLECTION_INFO"); len(calls) != 0 {
		t.Error("collection routing ran despite being disabled")
	}
}
