package chromem

import (
	"context"
	"testing"

	fathom "github.com/fathomhq/fathom"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func seedPapers(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.InitCollection(ctx, 4, "papers", "arxiv abstracts", false); err != nil {
		t.Fatalf("InitCollection: %v", err)
	}
	chunks := []fathom.Chunk{
		{Text: "alpha", Reference: "a.md", Embedding: []float32{1, 0, 0, 0},
			Metadata: map[string]any{fathom.MetaWiderText: "alpha in context"}},
		{Text: "beta", Reference: "b.md", Embedding: []float32{0, 1, 0, 0}},
		{Text: "gamma", Reference: "c.md", Embedding: []float32{0.9, 0.1, 0, 0}},
	}
	if err := s.Insert(ctx, "papers", chunks); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestInsertAndSearch(t *testing.T) {
	s := testStore(t)
	seedPapers(t, s)

	results, err := s.Search(context.Background(), "papers", []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Text != "alpha" || results[1].Text != "gamma" {
		t.Errorf("expected [alpha gamma], got [%s %s]", results[0].Text, results[1].Text)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score")
	}
	if results[0].Reference != "a.md" {
		t.Errorf("expected reference a.md, got %q", results[0].Reference)
	}
	if _, ok := results[0].Metadata[metaReference]; ok {
		t.Error("reserved reference key leaked into metadata")
	}
	if got := results[0].WiderText(); got != "alpha in context" {
		t.Errorf("metadata did not round-trip: %q", got)
	}
}

func TestSearchUnknownCollection(t *testing.T) {
	s := testStore(t)
	results, err := s.Search(context.Background(), "missing", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearchClampsTopK(t *testing.T) {
	s := testStore(t)
	seedPapers(t, s)

	results, err := s.Search(context.Background(), "papers", []float32{1, 0, 0, 0}, 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected all 3 results, got %d", len(results))
	}
}

func TestInitCollectionForce(t *testing.T) {
	s := testStore(t)
	seedPapers(t, s)
	ctx := context.Background()

	if err := s.InitCollection(ctx, 4, "papers", "rebuilt", true); err != nil {
		t.Fatalf("InitCollection force: %v", err)
	}
	results, err := s.Search(ctx, "papers", []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no chunks after force init, got %d", len(results))
	}
	infos, _ := s.ListCollections(ctx, 4)
	if len(infos) != 1 || infos[0].Description != "rebuilt" {
		t.Errorf("expected rebuilt description, got %+v", infos)
	}
}

func TestListCollectionsFiltersByDim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.InitCollection(ctx, 4, "small", "", false)
	s.InitCollection(ctx, 8, "large", "", false)

	infos, err := s.ListCollections(ctx, 4)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "small" {
		t.Errorf("unexpected collections for dim 4: %+v", infos)
	}
	all, _ := s.ListCollections(ctx, 0)
	if len(all) != 2 || all[0].Name != "small" || all[1].Name != "large" {
		t.Errorf("expected creation order [small large], got %+v", all)
	}
}

func TestClear(t *testing.T) {
	s := testStore(t)
	seedPapers(t, s)
	ctx := context.Background()

	if err := s.Clear(ctx, "papers"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	infos, _ := s.ListCollections(ctx, 0)
	if len(infos) != 0 {
		t.Errorf("expected no collections after clear, got %+v", infos)
	}
	results, err := s.Search(ctx, "papers", []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results after clear, got %d", len(results))
	}
}

func TestEmptyCollectionNameUsesDefault(t *testing.T) {
	s, err := New("", WithDefaultCollection("kb"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	s.InitCollection(ctx, 2, "", "", false)
	s.Insert(ctx, "", []fathom.Chunk{{Text: "hello", Embedding: []float32{1, 0}}})

	results, err := s.Search(ctx, "kb", []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Text != "hello" {
		t.Errorf("empty collection name did not fall back to default: %+v", results)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.InitCollection(ctx, 2, "notes", "personal notes", false); err != nil {
		t.Fatalf("InitCollection: %v", err)
	}
	if err := s1.Insert(ctx, "notes", []fathom.Chunk{{Text: "persisted", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	s2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	infos, err := s2.ListCollections(ctx, 2)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "notes" || infos[0].Description != "personal notes" {
		t.Errorf("registry did not survive reopen: %+v", infos)
	}
	results, err := s2.Search(ctx, "notes", []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Text != "persisted" {
		t.Errorf("documents did not survive reopen: %+v", results)
	}
}
