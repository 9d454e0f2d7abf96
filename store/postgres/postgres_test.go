package postgres

import "testing"

func TestChunkTable(t *testing.T) {
	tests := []struct {
		collection string
		want       string
	}{
		{"papers", `"chunks_papers"`},
		{"my_notes", `"chunks_my_notes"`},
		// Quoting neutralizes anything that is not a plain identifier.
		{`x"; DROP TABLE collections; --`, `"chunks_x""; DROP TABLE collections; --"`},
	}
	for _, tt := range tests {
		if got := chunkTable(tt.collection); got != tt.want {
			t.Errorf("chunkTable(%q) = %s, want %s", tt.collection, got, tt.want)
		}
	}
}

func TestHNSWWithClause(t *testing.T) {
	s := New(nil)
	if got := s.hnswWithClause(); got != "" {
		t.Errorf("expected empty clause by default, got %q", got)
	}

	s = New(nil, WithHNSWM(32), WithEFConstruction(128))
	if got := s.hnswWithClause(); got != " WITH (m = 32, ef_construction = 128)" {
		t.Errorf("unexpected clause: %q", got)
	}

	s = New(nil, WithEFConstruction(200))
	if got := s.hnswWithClause(); got != " WITH (ef_construction = 200)" {
		t.Errorf("unexpected clause: %q", got)
	}
}

func TestSerializeEmbedding(t *testing.T) {
	got := serializeEmbedding([]float32{0.5, -1, 0.25})
	if got != "[0.5,-1,0.25]" {
		t.Errorf("unexpected serialization: %s", got)
	}
	if got := serializeEmbedding(nil); got != "[]" {
		t.Errorf("expected [] for empty embedding, got %s", got)
	}
}

func TestDefaultCollectionOption(t *testing.T) {
	s := New(nil)
	if s.DefaultCollection() == "" {
		t.Fatal("expected a non-empty default collection")
	}
	s = New(nil, WithDefaultCollection("kb"))
	if s.DefaultCollection() != "kb" {
		t.Errorf("expected kb, got %s", s.DefaultCollection())
	}
	if got := s.collection(""); got != "kb" {
		t.Errorf("empty name should resolve to kb, got %s", got)
	}
	if got := s.collection("papers"); got != "papers" {
		t.Errorf("explicit name should pass through, got %s", got)
	}
}
